// Package reconciler drives delegated submissions to their terminal state.
// A push callback and a client poll both funnel into the same idempotent
// transition, so whichever trigger observes "all handles terminal" first
// performs the one-time aggregation and the other sees a no-op.
package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suchitj2702/algo-irl/internal/execution/aggregator"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"
)

// JudgePoller is the slice of the judge client the reconciler needs.
type JudgePoller interface {
	GetBatchStatus(ctx context.Context, tokens []string) ([]model.Verdict, error)
}

// Config wires the reconciler's dependencies.
type Config struct {
	Judge JudgePoller
	Store store.SubmissionStore

	// OnTerminal runs after a submission reaches completed or error, with
	// the freshly persisted record. Used for completion events and status
	// cache refresh. May be nil.
	OnTerminal func(ctx context.Context, submission *model.Submission)
}

// Reconciler applies the completion state machine for one submission at a
// time. No cross-submission locking exists; races on the same submission
// resolve by last-write-wins because aggregation is pure.
type Reconciler struct {
	judge      JudgePoller
	store      store.SubmissionStore
	onTerminal func(ctx context.Context, submission *model.Submission)
}

// New creates a reconciler. Judge and Store are required.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	return &Reconciler{
		judge:      cfg.Judge,
		store:      cfg.Store,
		onTerminal: cfg.OnTerminal,
	}, nil
}

// Reconcile advances one submission: a terminal record is returned as a pure
// read; otherwise all job handles are polled in one batched call. Any handle
// still queued or running keeps the submission in processing. Only when every
// handle is terminal does aggregation run and the terminal state persist.
// Transient judge failures return an error without touching stored status.
func (r *Reconciler) Reconcile(ctx context.Context, submissionID string) (*model.Submission, error) {
	submission, err := r.store.Get(ctx, submissionID)
	if err != nil {
		if err == store.ErrSubmissionNotFound {
			return nil, errors.New(errors.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return nil, errors.Wrap(err, errors.DatabaseError)
	}

	if submission.Status.IsTerminal() {
		return submission, nil
	}

	if len(submission.JobHandles) == 0 {
		// Local runs and not-yet-orchestrated submissions have nothing to
		// poll; report the stored state as-is.
		return submission, nil
	}

	verdicts, err := r.judge.GetBatchStatus(ctx, submission.JobHandles)
	if err != nil {
		return nil, err
	}

	if anyRunning(verdicts) {
		if submission.Status == model.StatusPending {
			if err := r.store.Update(ctx, submission.ID, store.Update{Status: model.StatusProcessing}); err != nil {
				return nil, errors.Wrap(err, errors.DatabaseError)
			}
			submission.Status = model.StatusProcessing
		}
		return submission, nil
	}

	report := aggregator.Aggregate(verdicts, submission.TestCases)
	status := model.StatusCompleted
	if len(verdicts) != len(submission.TestCases) {
		// The batch could not be scored; still terminal so it is not
		// retried forever.
		status = model.StatusError
	}

	if err := r.store.Update(ctx, submission.ID, store.Update{
		Status:  status,
		Results: &report,
	}); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}

	submission.Status = status
	submission.Results = &report
	logger.Info(ctx, "submission reached terminal state",
		zap.String("submission_id", submission.ID),
		zap.String("status", string(status)),
		zap.Bool("passed", report.Passed))

	if r.onTerminal != nil {
		r.onTerminal(ctx, submission)
	}
	return submission, nil
}

// WaitForCompletion polls Reconcile under the given policy until the
// submission is terminal. Transient judge failures are retried within the
// policy's window instead of surfacing immediately.
func (r *Reconciler) WaitForCompletion(ctx context.Context, submissionID string, policy Policy) (*model.Submission, error) {
	var final *model.Submission
	err := policy.Run(ctx, func(ctx context.Context) (bool, error) {
		submission, err := r.Reconcile(ctx, submissionID)
		if err != nil {
			if errors.Is(err, errors.ExternalServiceError) {
				return false, err
			}
			return true, err
		}
		if submission.Status.IsTerminal() {
			final = submission
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

func anyRunning(verdicts []model.Verdict) bool {
	for _, v := range verdicts {
		if !v.Status.IsTerminal() {
			return true
		}
	}
	return false
}
