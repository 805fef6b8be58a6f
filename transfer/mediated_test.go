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
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eodiscover/skyhook/catalog"
)

func TestDownloadProduct(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, err := w.Write([]byte("archive-bytes"))
		require.NoError(t, err)
	}))
	defer server.Close()

	outputDir := t.TempDir()
	rec := catalog.ProductRecord{ID: "abc-123", Name: "S1A_PRODUCT", ContentLength: 13}
	m := NewMediatedDownloader(WithDownloadBaseURL(server.URL), WithDownloadClient(server.Client()))

	artifact, err := m.DownloadProduct(context.Background(), rec, outputDir, "tok")
	require.NoError(t, err)
	assert.Equal(t, "/Products(abc-123)/$value", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, ArchivePath(outputDir, rec), artifact)

	contents, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(contents))

	// Success leaves the completion marker and no temp file behind.
	assert.True(t, markerExists(outputDir, rec))
	_, err = os.Stat(artifact + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadProductRequiresCatalogID(t *testing.T) {
	m := NewMediatedDownloader(WithDownloadBaseURL("http://unused.invalid"))
	_, err := m.DownloadProduct(context.Background(), catalog.ProductRecord{Name: "NO_ID"}, t.TempDir(), "tok")
	require.Error(t, err)
	assert.True(t, isStructural(err))
}

func TestDownloadProductHTTPFailureLeavesNoArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	outputDir := t.TempDir()
	rec := catalog.ProductRecord{ID: "abc-123", Name: "S1A_PRODUCT"}
	m := NewMediatedDownloader(WithDownloadBaseURL(server.URL), WithDownloadClient(server.Client()))

	_, err := m.DownloadProduct(context.Background(), rec, outputDir, "tok")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.True(t, isRetryable(err))

	assert.False(t, markerExists(outputDir, rec))
	_, err = os.Stat(ArchivePath(outputDir, rec))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadObjectWalksNodeHierarchy(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, err := w.Write([]byte("tiff-bytes"))
		require.NoError(t, err)
	}))
	defer server.Close()

	outputDir := t.TempDir()
	rec := catalog.ProductRecord{ID: "abc-123", Name: "S1A_PRODUCT"}
	m := NewMediatedDownloader(WithDownloadBaseURL(server.URL), WithDownloadClient(server.Client()))

	err := m.DownloadObject(context.Background(), rec, "measurement/iw2-vv.tiff", outputDir, "tok")
	require.NoError(t, err)
	assert.Equal(t, "/Products(abc-123)/Nodes(S1A_PRODUCT)/Nodes(measurement)/Nodes(iw2-vv.tiff)/$value", gotPath)

	contents, err := os.ReadFile(filepath.Join(ProductDir(outputDir, rec), "measurement", "iw2-vv.tiff"))
	require.NoError(t, err)
	assert.Equal(t, "tiff-bytes", string(contents))

	// Single-object fetches never mark the whole product complete.
	assert.False(t, markerExists(outputDir, rec))
}
