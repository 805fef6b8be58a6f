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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/eodiscover/skyhook/catalog"
	"github.com/eodiscover/skyhook/config"
)

type (
	// MediatedDownloader streams product bytes through the catalog service
	// itself, used when direct object-store access is unavailable or has
	// been downgraded.
	MediatedDownloader struct {
		baseURL      string
		client       *http.Client
		showProgress bool
	}

	// MediatedOption customizes a MediatedDownloader at construction time.
	MediatedOption func(*MediatedDownloader)
)

// WithDownloadBaseURL overrides the configured download endpoint.
func WithDownloadBaseURL(base string) MediatedOption {
	return func(m *MediatedDownloader) {
		m.baseURL = strings.TrimRight(base, "/")
	}
}

// WithDownloadClient overrides the HTTP client used for transfers.
func WithDownloadClient(client *http.Client) MediatedOption {
	return func(m *MediatedDownloader) {
		m.client = client
	}
}

// NewMediatedDownloader builds a downloader against the configured catalog
// download endpoint.  The client carries no overall timeout since a
// whole-product archive can legitimately take hours; reads are bounded by the
// transport's header and idle timeouts plus the caller's context.
func NewMediatedDownloader(options ...MediatedOption) *MediatedDownloader {
	m := &MediatedDownloader{
		baseURL: strings.TrimRight(viper.GetString("Catalog.DownloadBaseUrl"), "/"),
		client: &http.Client{
			Transport: config.GetTransport(),
		},
	}
	if !viper.GetBool("Transfer.DisableProgressBars") {
		if fileInfo, _ := os.Stdout.Stat(); fileInfo != nil && (fileInfo.Mode()&os.ModeCharDevice) != 0 {
			m.showProgress = true
		}
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// DownloadProduct streams the whole product archive to
// <destDir>/<name>/<name>.zip and writes the completion marker on success.
// Returns the artifact path.
func (m *MediatedDownloader) DownloadProduct(ctx context.Context, rec catalog.ProductRecord, destDir, bearer string) (string, error) {
	if rec.ID == "" {
		return "", &StructuralError{ProductName: rec.Name}
	}
	target := fmt.Sprintf("%s/Products(%s)/$value", m.baseURL, rec.ID)
	artifact := ArchivePath(destDir, rec)
	if err := m.streamTo(ctx, target, artifact, rec.Name, rec.ContentLength, bearer); err != nil {
		return "", err
	}
	if err := writeCompletionMarker(destDir, rec); err != nil {
		return "", err
	}
	return artifact, nil
}

// DownloadObject streams a single object of a product through the catalog's
// node hierarchy, used when a direct-path transfer fails partway and only
// the remaining objects need re-fetching.
func (m *MediatedDownloader) DownloadObject(ctx context.Context, rec catalog.ProductRecord, relPath, destDir, bearer string) error {
	if rec.ID == "" {
		return &StructuralError{ProductName: rec.Name}
	}
	nodes := []string{rec.Name}
	nodes = append(nodes, strings.Split(strings.Trim(relPath, "/"), "/")...)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/Products(%s)", m.baseURL, rec.ID)
	for _, node := range nodes {
		fmt.Fprintf(&sb, "/Nodes(%s)", node)
	}
	sb.WriteString("/$value")

	local := filepath.Join(ProductDir(destDir, rec), filepath.FromSlash(relPath))
	return m.streamTo(ctx, sb.String(), local, filepath.Base(relPath), 0, bearer)
}

// streamTo performs one authenticated GET and streams the body to disk,
// writing through a temporary file so an interrupted transfer never leaves
// a plausible-looking artifact behind.
func (m *MediatedDownloader) streamTo(ctx context.Context, target, localPath, label string, totalSize int64, bearer string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to construct download request")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "download request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	tmpPath := localPath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer func() {
		file.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	var reader io.Reader = resp.Body
	if m.showProgress {
		if totalSize == 0 {
			totalSize = resp.ContentLength
		}
		// One container per stream keeps shutdown simple: aborting the bar
		// and waiting flushes the display before the transfer returns.
		progress := mpb.New(mpb.WithWidth(40))
		bar := progress.AddBar(totalSize,
			mpb.BarRemoveOnComplete(),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpaceR),
				decor.CountersKibiByte("% .2f / % .2f"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		proxy := bar.ProxyReader(resp.Body)
		defer func() {
			proxy.Close()
			bar.Abort(true)
			bar.Wait()
			progress.Wait()
		}()
		reader = proxy
	}

	written, err := io.Copy(file, reader)
	if err != nil {
		return errors.Wrapf(err, "failed while streaming %s", label)
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "failed to flush output file")
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return errors.Wrap(err, "failed to move artifact into place")
	}
	log.Debugf("Downloaded %s (%d bytes) via the mediated path", label, written)
	return nil
}
