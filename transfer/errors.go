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
	"net"

	"github.com/pkg/errors"
)

type (
	// StructuralError marks a record that cannot be transferred at all:
	// it carries neither a store path nor a catalog identifier.  It is
	// recorded per task and never aborts the batch on its own.
	StructuralError struct {
		ProductName string
	}

	// IntegrityError converts a reported transfer success into a failure:
	// the completion marker the transfer should have produced is missing.
	IntegrityError struct {
		MarkerPath string
	}

	// HTTPStatusError indicates the download endpoint returned a non-2xx
	// status for a mediated transfer.
	HTTPStatusError struct {
		StatusCode int
		Status     string
	}
)

func (e *StructuralError) Error() string {
	return fmt.Sprintf("product %s has no transferable reference (no store path, no catalog id)", e.ProductName)
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("transfer reported success but completion marker %s is missing", e.MarkerPath)
}

func (e *HTTPStatusError) Error() string {
	return "download request failed: " + e.Status
}

// ErrAllTasksStructural is the batch-level error raised when every task in
// a batch failed because no record carried a transferable reference.
var ErrAllTasksStructural = errors.New("no record in the batch carries a transferable reference")

// isStructural reports whether the error marks a record as untransferable.
func isStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// isRetryable reports whether a mediated transfer error is worth another
// attempt.  Auth-adjacent statuses are retryable because the retry loop
// refreshes the bearer token first.
func isRetryable(err error) bool {
	var hse *HTTPStatusError
	if errors.As(err, &hse) {
		switch hse.StatusCode {
		case 401, 403, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if isStructural(err) {
		return false
	}
	var ie *IntegrityError
	return !errors.As(err, &ie)
}
