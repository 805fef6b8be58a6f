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
	"sync"

	"github.com/google/uuid"

	"github.com/eodiscover/skyhook/catalog"
)

type (
	// Outcome is the terminal state of one download task.
	Outcome int

	// task tracks per-record transfer state from dispatch to its terminal
	// outcome.  It is discarded once folded into the summary.
	task struct {
		id         uuid.UUID
		record     catalog.ProductRecord
		path       PathKind
		attempts   int
		lastErr    error
		outcome    Outcome
		failedKeys []string
		note       string
		structural bool
	}

	// TaskDetail is the per-task entry in a summary's detail log.
	TaskDetail struct {
		TaskID      uuid.UUID
		ProductID   string
		ProductName string
		Path        PathKind
		Outcome     Outcome
		Attempts    int
		Error       string
		FailedKeys  []string
		Note        string
		structural  bool
	}

	// Summary accumulates the outcomes of every task in one batch.
	// Updates are mutex-guarded so tasks may complete concurrently;
	// once the batch returns, the summary is no longer mutated.
	Summary struct {
		mu        sync.Mutex
		Succeeded int
		Failed    int
		Skipped   int
		Details   []TaskDetail
	}
)

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{}
}

func newTask(rec catalog.ProductRecord, path PathKind) *task {
	return &task{id: uuid.New(), record: rec, path: path}
}

func (t *task) succeed() {
	t.outcome = OutcomeSucceeded
}

func (t *task) fail(err error) {
	t.outcome = OutcomeFailed
	t.lastErr = err
	t.structural = isStructural(err)
}

func (t *task) skip(note string) {
	t.outcome = OutcomeSkipped
	t.note = note
}

// record folds a finished task into the summary.
func (s *Summary) record(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	detail := TaskDetail{
		TaskID:      t.id,
		ProductID:   t.record.ID,
		ProductName: t.record.Name,
		Path:        t.path,
		Outcome:     t.outcome,
		Attempts:    t.attempts,
		FailedKeys:  t.failedKeys,
		Note:        t.note,
		structural:  t.structural,
	}
	if t.lastErr != nil {
		detail.Error = t.lastErr.Error()
	}
	s.Details = append(s.Details, detail)
}

// allFailedStructural reports whether every detail in the summary is a
// failure caused by a missing transferable reference.
func (s *Summary) allFailedStructural() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Details) == 0 || s.Failed != len(s.Details) {
		return false
	}
	for _, d := range s.Details {
		if !d.structural {
			return false
		}
	}
	return true
}
