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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/eodiscover/skyhook/catalog"
)

// CompletionMarkerName is the file written into a product's output
// directory once its transfer has fully completed.  Its presence short-
// circuits any later download of the same product.
const CompletionMarkerName = ".skyhook-complete"

// ProductDir returns the per-product output directory.
func ProductDir(outputDir string, rec catalog.ProductRecord) string {
	return filepath.Join(outputDir, rec.Name)
}

// MarkerPath returns the completion marker location for a product.
func MarkerPath(outputDir string, rec catalog.ProductRecord) string {
	return filepath.Join(ProductDir(outputDir, rec), CompletionMarkerName)
}

// ArchivePath returns the mediated-path artifact location for a product.
func ArchivePath(outputDir string, rec catalog.ProductRecord) string {
	return filepath.Join(ProductDir(outputDir, rec), rec.Name+".zip")
}

// writeCompletionMarker records a finished transfer.  The marker body holds
// the product identifier and the completion time for later inspection.
func writeCompletionMarker(outputDir string, rec catalog.ProductRecord) error {
	marker := MarkerPath(outputDir, rec)
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		return errors.Wrap(err, "failed to create product directory")
	}
	body := fmt.Sprintf("%s\n%s\n", rec.ID, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(marker, []byte(body), 0644); err != nil {
		return errors.Wrap(err, "failed to write completion marker")
	}
	return nil
}

// alreadyComplete reports whether a previously finished artifact exists on
// disk for the product: either the completion marker or a matching archive.
// No network activity is involved.
func alreadyComplete(outputDir string, rec catalog.ProductRecord) (bool, string) {
	if _, err := os.Stat(MarkerPath(outputDir, rec)); err == nil {
		return true, "completion marker present"
	}
	if info, err := os.Stat(ArchivePath(outputDir, rec)); err == nil && info.Size() > 0 {
		return true, "archive already downloaded"
	}
	return false, ""
}

// markerExists re-stats the completion marker; used by the optional
// post-transfer validation step.
func markerExists(outputDir string, rec catalog.ProductRecord) bool {
	_, err := os.Stat(MarkerPath(outputDir, rec))
	return err == nil
}
