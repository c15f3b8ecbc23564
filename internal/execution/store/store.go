// Package store persists the submission record state machine. The contract
// is deliberately weak: get plus last-write-wins update, nothing stronger,
// because callback/poll races are resolved by idempotent aggregation rather
// than by the store.
package store

import (
	"context"
	"errors"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
)

// ErrSubmissionNotFound reports a lookup miss.
var ErrSubmissionNotFound = errors.New("submission not found")

// Update carries the mutable fields of one submission record. Nil fields are
// left untouched so the orchestrator can attach handles without clobbering a
// result a racing writer already stored.
type Update struct {
	Status  model.SubmissionStatus
	Results *model.AggregatedReport

	// JobHandles replaces the stored handle set when non-nil.
	JobHandles []string
}

// SubmissionStore is the persistence contract for submission records.
// Implementations guarantee no more than last-write-wins semantics.
type SubmissionStore interface {
	Create(ctx context.Context, submission *model.Submission) error
	Get(ctx context.Context, id string) (*model.Submission, error)
	Update(ctx context.Context, id string, update Update) error
}
