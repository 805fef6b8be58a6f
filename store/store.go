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

// Package store provides direct object-store access for product transfers,
// authenticated with a temporary key pair.
package store

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	awshttp "github.com/aws/smithy-go/transport/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type (
	// ObjectInfo describes one object under a product prefix.
	ObjectInfo struct {
		Key          string
		Size         int64
		LastModified time.Time
	}

	// s3API is the slice of the object-store protocol the client consumes;
	// kept narrow so tests can stub it.
	s3API interface {
		ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
		GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	}

	// Client wraps the object-store protocol for one bucket: list by
	// prefix, a cheap existence probe, and per-object fetch to disk.
	Client struct {
		api    s3API
		bucket string
	}

	// PermissionDeniedError indicates the store rejected the temporary
	// credential at request time.  Role presence on the bearer token does
	// not guarantee bucket access, so callers must be ready for this on
	// any store call.
	PermissionDeniedError struct {
		Err error
	}
)

func (e *PermissionDeniedError) Error() string {
	return "object store denied access: " + e.Err.Error()
}

func (e *PermissionDeniedError) Unwrap() error {
	return e.Err
}

// New builds a store client for the configured endpoint, region, and bucket,
// authenticated with the given temporary key pair.
func New(ctx context.Context, accessID, secret string) (*Client, error) {
	endpoint := viper.GetString("Store.EndpointUrl")
	region := viper.GetString("Store.Region")
	bucket := viper.GetString("Store.Bucket")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessID, secret, ""),
		),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout: viper.GetDuration("Transfer.ObjectTimeout"),
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build object-store configuration")
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &Client{api: api, bucket: bucket}, nil
}

// newWithAPI is the test constructor.
func newWithAPI(api s3API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// Probe performs a cheap existence check: list a single key under the
// prefix.  A permission-denied response surfaces as *PermissionDeniedError
// so the caller can downgrade to the mediated path.
func (c *Client) Probe(ctx context.Context, prefix string) error {
	_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return classify(err)
	}
	log.Debugf("Object-store probe succeeded for prefix %s", prefix)
	return nil
}

// ListPrefix enumerates every object under the given prefix, following
// pagination.  Directory marker keys (trailing slash) are skipped.
func (c *Client) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(errors.Wrapf(err, "failed to list objects under %s", prefix))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// Fetch streams one object to the local path derived from its key relative
// to prefix, mirroring the remote directory structure under destDir.  The
// bytes land in a temporary file first so an interrupted stream never leaves
// a truncated object that looks complete.  Returns the number of bytes
// written.
func (c *Client) Fetch(ctx context.Context, key, prefix, destDir string) (written int64, err error) {
	localPath, err := LocalPathFor(key, prefix, destDir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, errors.Wrap(err, "failed to create local directory")
	}

	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classify(errors.Wrapf(err, "failed to fetch object %s", key))
	}
	defer result.Body.Close()

	tmpPath := localPath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create local file")
	}
	defer func() {
		file.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	written, err = io.Copy(file, result.Body)
	if err != nil {
		return written, errors.Wrapf(err, "failed while streaming object %s", key)
	}
	if err = file.Close(); err != nil {
		return written, errors.Wrap(err, "failed to flush local file")
	}
	if err = os.Rename(tmpPath, localPath); err != nil {
		return written, errors.Wrap(err, "failed to move object into place")
	}
	log.Debugf("Fetched %s (%d bytes) to %s", key, written, localPath)
	return written, nil
}

// LocalPathFor maps an object key onto a local file path under destDir,
// preserving the directory structure below the product prefix.  Keys that
// would escape destDir are rejected.
func LocalPathFor(key, prefix, destDir string) (string, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" {
		rel = filepath.Base(key)
	}
	local := filepath.Join(destDir, filepath.FromSlash(rel))
	cleanDest := filepath.Clean(destDir)
	if !strings.HasPrefix(filepath.Clean(local), cleanDest+string(filepath.Separator)) && filepath.Clean(local) != cleanDest {
		return "", errors.Errorf("object key %q escapes the destination directory", key)
	}
	return local, nil
}

// ParseStorePath splits a catalog store path ("/eodata/Sentinel-1/...") into
// its bucket and object prefix.
func ParseStorePath(storePath string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(storePath, "/")
	if trimmed == "" {
		return "", "", errors.New("record carries an empty store path")
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", errors.Errorf("store path %q has no object prefix", storePath)
	}
	return parts[0], strings.TrimSuffix(parts[1], "/"), nil
}

// classify maps a store error into the client's taxonomy: permission
// failures become *PermissionDeniedError, everything else passes through.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "AccessDenied" || code == "AccessDeniedException" || code == "Forbidden" {
			return &PermissionDeniedError{Err: err}
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusForbidden {
		return &PermissionDeniedError{Err: err}
	}
	return err
}

// IsPermissionDenied reports whether err (anywhere in its chain) is a
// store permission failure.
func IsPermissionDenied(err error) bool {
	var pde *PermissionDeniedError
	return errors.As(err, &pde)
}
