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

// Package bulkcopy invokes the external bulk-copy utility for whole-prefix
// object-store transfers, streaming its progress output line by line.
package bulkcopy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type (
	// Runner invokes the configured bulk-copy binary.  The utility is
	// long-running and blocking; its merged stdout/stderr is consumed
	// incrementally so a slow copy never buffers unbounded output.
	Runner struct {
		binary   string
		endpoint string
		region   string
	}

	// ExitError is returned when the utility exits non-zero.  It carries
	// the captured output so the caller can report the tool's own message.
	ExitError struct {
		Code   int
		Output string
	}
)

const (
	// tailLimit bounds how many output lines are retained for error reports.
	tailLimit = 50
	// maxLineBytes caps a single progress line from the utility.
	maxLineBytes = 1024 * 1024
)

func (e *ExitError) Error() string {
	return fmt.Sprintf("bulk-copy utility exited with status %d:\n%s", e.Code, e.Output)
}

// NewRunner builds a runner against the configured binary and store endpoint.
func NewRunner() *Runner {
	return &Runner{
		binary:   viper.GetString("BulkCopy.Binary"),
		endpoint: viper.GetString("Store.EndpointUrl"),
		region:   viper.GetString("Store.Region"),
	}
}

// newRunnerWithBinary is the test constructor.
func newRunnerWithBinary(binary, endpoint, region string) *Runner {
	return &Runner{binary: binary, endpoint: endpoint, region: region}
}

// CopyPrefix copies every object under the given store URL (a wildcard
// suffix is appended for whole-prefix copies) into destDir.  Credentials are
// passed through the environment; progress lines are forwarded to lineFn as
// they arrive.  Cancelling the context terminates the subprocess.
func (r *Runner) CopyPrefix(ctx context.Context, storeURL, destDir, accessID, secret string, lineFn func(string)) error {
	if !strings.HasSuffix(storeURL, "/*") {
		storeURL = strings.TrimSuffix(storeURL, "/") + "/*"
	}
	args := []string{
		"--endpoint-url", r.endpoint,
		"cp", storeURL, strings.TrimSuffix(destDir, "/") + "/",
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Env = append(os.Environ(),
		"AWS_ACCESS_KEY_ID="+accessID,
		"AWS_SECRET_ACCESS_KEY="+secret,
		"AWS_DEFAULT_REGION="+r.region,
	)
	// Merge stderr into stdout so progress and errors arrive in order.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open bulk-copy stdout pipe")
	}
	cmd.Stderr = cmd.Stdout

	log.Debugln("Running bulk-copy:", r.binary, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start bulk-copy utility %s", r.binary)
	}

	runLogger := log.WithFields(log.Fields{"utility": r.binary})
	lines := make(chan string, 10)
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		// Progress lines listing many objects can exceed bufio's default
		// token limit.
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr = scanner.Err()
	}()

	// Keep only a bounded tail of output for error reporting.
	var tail []string
	for line := range lines {
		if line == "" {
			continue
		}
		runLogger.Info(line)
		if lineFn != nil {
			lineFn(line)
		}
		if len(tail) == tailLimit {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}

	if scanErr != nil {
		runLogger.Warnln("Bulk-copy output reader failed; later output was lost:", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "bulk-copy cancelled")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Output: strings.Join(tail, "\n")}
		}
		return errors.Wrap(err, "bulk-copy utility failed")
	}
	return nil
}
