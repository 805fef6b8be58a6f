/***************************************************************
 *
 * Copyright (C) 2025, Skyhook Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eodiscover/skyhook/catalog"
)

func TestCompletionMarkerRoundTrip(t *testing.T) {
	outputDir := t.TempDir()
	rec := catalog.ProductRecord{ID: "id-1", Name: "S1A_PRODUCT"}

	done, _ := alreadyComplete(outputDir, rec)
	assert.False(t, done)
	assert.False(t, markerExists(outputDir, rec))

	require.NoError(t, writeCompletionMarker(outputDir, rec))
	assert.True(t, markerExists(outputDir, rec))

	done, reason := alreadyComplete(outputDir, rec)
	assert.True(t, done)
	assert.Contains(t, reason, "marker")

	// The marker body records which product finished.
	body, err := os.ReadFile(MarkerPath(outputDir, rec))
	require.NoError(t, err)
	assert.Contains(t, string(body), "id-1")
}

func TestAlreadyCompleteViaArchive(t *testing.T) {
	outputDir := t.TempDir()
	rec := catalog.ProductRecord{ID: "id-2", Name: "S1A_ARCHIVED"}

	// An empty archive does not count as finished.
	require.NoError(t, os.MkdirAll(ProductDir(outputDir, rec), 0755))
	require.NoError(t, os.WriteFile(ArchivePath(outputDir, rec), nil, 0644))
	done, _ := alreadyComplete(outputDir, rec)
	assert.False(t, done)

	require.NoError(t, os.WriteFile(ArchivePath(outputDir, rec), []byte("PK..."), 0644))
	done, reason := alreadyComplete(outputDir, rec)
	assert.True(t, done)
	assert.Contains(t, reason, "archive")
}

func TestProductPaths(t *testing.T) {
	rec := catalog.ProductRecord{Name: "S1A_PRODUCT"}
	assert.Equal(t, filepath.Join("/out", "S1A_PRODUCT"), ProductDir("/out", rec))
	assert.Equal(t, filepath.Join("/out", "S1A_PRODUCT", CompletionMarkerName), MarkerPath("/out", rec))
	assert.Equal(t, filepath.Join("/out", "S1A_PRODUCT", "S1A_PRODUCT.zip"), ArchivePath("/out", rec))
}
