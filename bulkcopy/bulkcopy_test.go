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

package bulkcopy

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes a shell script standing in for the bulk-copy binary.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test tool is a POSIX shell script")
	}
	path := filepath.Join(t.TempDir(), "fake-s5cmd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestCopyPrefixStreamsOutput(t *testing.T) {
	tool := fakeTool(t, `
echo "cp s3://eodata/prefix/a.dat"
echo "cp s3://eodata/prefix/b.dat"
echo "AWS_ACCESS_KEY_ID=$AWS_ACCESS_KEY_ID"
`)
	runner := newRunnerWithBinary(tool, "https://store.example", "default")

	var lines []string
	err := runner.CopyPrefix(context.Background(), "s3://eodata/prefix", t.TempDir(), "AKIA123", "s3cr3t", func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "cp s3://eodata/prefix/a.dat", lines[0])
	// Credentials travel via the environment, not the command line.
	assert.Equal(t, "AWS_ACCESS_KEY_ID=AKIA123", lines[2])
}

func TestCopyPrefixSurvivesLongProgressLines(t *testing.T) {
	// A single line well past bufio's 64 KiB default token limit must not
	// abort the output reader or drop the lines after it.
	tool := fakeTool(t, `
awk 'BEGIN { for (i = 0; i < 100000; i++) printf "x"; print "" }'
echo "all done"
`)
	runner := newRunnerWithBinary(tool, "https://store.example", "default")

	var lines []string
	err := runner.CopyPrefix(context.Background(), "s3://eodata/prefix", t.TempDir(), "AKIA123", "s3cr3t", func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 100000)
	assert.Equal(t, "all done", lines[1])
}

func TestCopyPrefixNonZeroExit(t *testing.T) {
	tool := fakeTool(t, `
echo "ERROR: access denied for s3://eodata/prefix"
exit 9
`)
	runner := newRunnerWithBinary(tool, "https://store.example", "default")

	err := runner.CopyPrefix(context.Background(), "s3://eodata/prefix/*", t.TempDir(), "AKIA123", "s3cr3t", nil)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 9, exitErr.Code)
	assert.Contains(t, exitErr.Output, "access denied")
}

func TestCopyPrefixCancellation(t *testing.T) {
	tool := fakeTool(t, `sleep 30`)
	runner := newRunnerWithBinary(tool, "https://store.example", "default")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := runner.CopyPrefix(ctx, "s3://eodata/prefix", t.TempDir(), "AKIA123", "s3cr3t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestCopyPrefixMissingBinary(t *testing.T) {
	runner := newRunnerWithBinary(filepath.Join(t.TempDir(), "does-not-exist"), "https://store.example", "default")
	err := runner.CopyPrefix(context.Background(), "s3://eodata/prefix", t.TempDir(), "AKIA123", "s3cr3t", nil)
	assert.Error(t, err)
}
