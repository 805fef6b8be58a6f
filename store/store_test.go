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

package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI implements the slice of the object-store protocol the client uses.
type stubAPI struct {
	listPages []*s3.ListObjectsV2Output
	listErr   error
	listCalls int

	objects   map[string]string
	getErr    error
	streamErr error
}

// errReader fails the stream after everything before it has been read.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func (s *stubAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.listCalls >= len(s.listPages) {
		return &s3.ListObjectsV2Output{}, nil
	}
	page := s.listPages[s.listCalls]
	s.listCalls++
	return page, nil
}

func (s *stubAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	body, ok := s.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
	}
	reader := io.Reader(strings.NewReader(body))
	if s.streamErr != nil {
		reader = io.MultiReader(reader, errReader{s.streamErr})
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(reader),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func TestProbe(t *testing.T) {
	client := newWithAPI(&stubAPI{listPages: []*s3.ListObjectsV2Output{{}}}, "eodata")
	assert.NoError(t, client.Probe(context.Background(), "Sentinel-1/SAR"))

	denied := newWithAPI(&stubAPI{listErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}}, "eodata")
	err := denied.Probe(context.Background(), "Sentinel-1/SAR")
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
}

func TestListPrefixFollowsPaginationAndSkipsMarkers(t *testing.T) {
	api := &stubAPI{
		listPages: []*s3.ListObjectsV2Output{
			{
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("page-2"),
				Contents: []types.Object{
					{Key: aws.String("prefix/manifest.safe"), Size: aws.Int64(1024)},
					{Key: aws.String("prefix/measurement/"), Size: aws.Int64(0)},
				},
			},
			{
				IsTruncated: aws.Bool(false),
				Contents: []types.Object{
					{Key: aws.String("prefix/measurement/iw2-vv.tiff"), Size: aws.Int64(2048)},
				},
			},
		},
	}
	client := newWithAPI(api, "eodata")

	objects, err := client.ListPrefix(context.Background(), "prefix")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "prefix/manifest.safe", objects[0].Key)
	assert.EqualValues(t, 1024, objects[0].Size)
	assert.Equal(t, "prefix/measurement/iw2-vv.tiff", objects[1].Key)
	assert.Equal(t, 2, api.listCalls)
}

func TestListPrefixClassifiesPermissionFailure(t *testing.T) {
	api := &stubAPI{listErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	client := newWithAPI(api, "eodata")

	_, err := client.ListPrefix(context.Background(), "prefix")
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))

	var pde *PermissionDeniedError
	require.True(t, errors.As(err, &pde))
	assert.Contains(t, pde.Error(), "denied access")
}

func TestFetchMirrorsRemoteStructure(t *testing.T) {
	api := &stubAPI{objects: map[string]string{
		"prefix/measurement/iw2-vv.tiff": "tiff-bytes",
	}}
	client := newWithAPI(api, "eodata")
	destDir := t.TempDir()

	written, err := client.Fetch(context.Background(), "prefix/measurement/iw2-vv.tiff", "prefix", destDir)
	require.NoError(t, err)
	assert.EqualValues(t, len("tiff-bytes"), written)

	contents, err := os.ReadFile(filepath.Join(destDir, "measurement", "iw2-vv.tiff"))
	require.NoError(t, err)
	assert.Equal(t, "tiff-bytes", string(contents))
}

func TestFetchStreamFailureLeavesNoArtifact(t *testing.T) {
	api := &stubAPI{
		objects:   map[string]string{"prefix/measurement/iw2-vv.tiff": "tiff-"},
		streamErr: errors.New("connection reset"),
	}
	client := newWithAPI(api, "eodata")
	destDir := t.TempDir()

	_, err := client.Fetch(context.Background(), "prefix/measurement/iw2-vv.tiff", "prefix", destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// Neither a truncated object nor the temporary file survives.
	local := filepath.Join(destDir, "measurement", "iw2-vv.tiff")
	_, statErr := os.Stat(local)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(local + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchClassifiesPermissionFailure(t *testing.T) {
	api := &stubAPI{getErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	client := newWithAPI(api, "eodata")

	_, err := client.Fetch(context.Background(), "prefix/file", "prefix", t.TempDir())
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
}

func TestLocalPathFor(t *testing.T) {
	local, err := LocalPathFor("prefix/a/b.dat", "prefix", "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a", "b.dat"), local)

	// A key equal to the prefix falls back to its base name.
	local, err = LocalPathFor("prefix/a/b.dat", "prefix/a/b.dat", "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "b.dat"), local)

	// Path traversal out of the destination is rejected.
	_, err = LocalPathFor("prefix/../../etc/passwd", "prefix", "/out")
	assert.Error(t, err)
}

func TestParseStorePath(t *testing.T) {
	bucket, prefix, err := ParseStorePath("/eodata/Sentinel-1/SAR/SLC/2023/05/01/S1A_PRODUCT")
	require.NoError(t, err)
	assert.Equal(t, "eodata", bucket)
	assert.Equal(t, "Sentinel-1/SAR/SLC/2023/05/01/S1A_PRODUCT", prefix)

	// Trailing slashes on the prefix are normalized away.
	_, prefix, err = ParseStorePath("/eodata/Sentinel-1/")
	require.NoError(t, err)
	assert.Equal(t, "Sentinel-1", prefix)

	_, _, err = ParseStorePath("")
	assert.Error(t, err)
	_, _, err = ParseStorePath("/eodata")
	assert.Error(t, err)
	_, _, err = ParseStorePath("/eodata/")
	assert.Error(t, err)
}

func TestIsPermissionDeniedThroughWrapping(t *testing.T) {
	inner := &PermissionDeniedError{Err: errors.New("403")}
	wrapped := errors.Wrap(inner, "while probing")
	assert.True(t, IsPermissionDenied(wrapped))
	assert.False(t, IsPermissionDenied(errors.New("plain failure")))
}
