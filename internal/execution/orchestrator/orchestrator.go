// Package orchestrator turns one submission into a batch of delegated
// execution requests and records the returned job handles.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/judge0"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"
)

// JudgeSubmitter is the slice of the judge client the orchestrator needs.
type JudgeSubmitter interface {
	SubmitBatch(ctx context.Context, entries []judge0.Entry) ([]string, error)
}

// Config wires the orchestrator's dependencies.
type Config struct {
	Judge JudgeSubmitter
	Store store.SubmissionStore

	// Limits are the global defaults; per-test-case overrides win.
	Limits model.ResourceLimits

	// CallbackURL builds the per-submission push callback address. Nil
	// disables callbacks and leaves polling as the only completion path.
	CallbackURL func(submissionID string) string
}

// Orchestrator submits delegated batches and persists the handle set.
type Orchestrator struct {
	judge       JudgeSubmitter
	store       store.SubmissionStore
	limits      model.ResourceLimits
	callbackURL func(submissionID string) string
}

// New creates an orchestrator. Judge and Store are required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	cfg.Limits = cfg.Limits.Normalize()
	return &Orchestrator{
		judge:       cfg.Judge,
		store:       cfg.Store,
		limits:      cfg.Limits,
		callbackURL: cfg.CallbackURL,
	}, nil
}

// Submit builds one batch entry per test case, submits the batch in a single
// call and persists the returned handles on the submission record before
// returning. Handle order matches test-case order; a short handle set is
// fatal and moves the submission to error.
func (o *Orchestrator) Submit(ctx context.Context, submission *model.Submission, harness adapter.Harness) ([]string, error) {
	if submission == nil || len(submission.TestCases) == 0 {
		return nil, errors.New(errors.NoTestCases)
	}

	entries := make([]judge0.Entry, len(submission.TestCases))
	for i, tc := range submission.TestCases {
		timeoutMs, memoryMb := o.limits.ForCase(tc)
		entry := judge0.Entry{
			SourceCode:      harness.Source,
			LanguageID:      harness.JudgeLanguageID,
			Stdin:           tc.Stdin,
			ExpectedOutput:  tc.ExpectedStdout,
			CPUTimeLimitSec: float64(timeoutMs) / 1000,
			MemoryLimitKb:   memoryMb * 1024,
		}
		if o.callbackURL != nil {
			entry.CallbackURL = o.callbackURL(submission.ID)
		}
		entries[i] = entry
	}

	handles, err := o.judge.SubmitBatch(ctx, entries)
	if err != nil {
		// Transient submit failures leave the record untouched so the
		// caller can retry.
		return nil, err
	}

	if len(handles) < len(entries) {
		missingErr := errors.MissingHandlesError(len(entries), len(handles))
		logger.Error(ctx, "judge returned short handle set",
			zap.String("submission_id", submission.ID),
			zap.Int("expected", len(entries)),
			zap.Int("received", len(handles)))
		if updateErr := o.store.Update(ctx, submission.ID, store.Update{Status: model.StatusError}); updateErr != nil {
			logger.Error(ctx, "persist error status failed",
				zap.String("submission_id", submission.ID), zap.Error(updateErr))
		}
		return nil, missingErr
	}

	if err := o.store.Update(ctx, submission.ID, store.Update{
		Status:     model.StatusProcessing,
		JobHandles: handles,
	}); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "persist job handles for %s", submission.ID)
	}
	return handles, nil
}
