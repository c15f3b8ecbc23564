// Package service ties the execution pipeline together: validation, harness
// assembly, the local-versus-delegated dispatch, idempotency, archival and
// completion events.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/aggregator"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"
)

const (
	idempotencyKeyPrefix = "execution:idem:"
	idempotencyTTL       = 10 * time.Minute
)

// BatchSubmitter is the orchestrator slice the service needs.
type BatchSubmitter interface {
	Submit(ctx context.Context, submission *model.Submission, harness adapter.Harness) ([]string, error)
}

// Completer is the reconciler slice the service needs.
type Completer interface {
	Reconcile(ctx context.Context, submissionID string) (*model.Submission, error)
	WaitForCompletion(ctx context.Context, submissionID string, policy reconciler.Policy) (*model.Submission, error)
}

// ExecuteRequest is one inbound execution request.
type ExecuteRequest struct {
	Code      string           `json:"code"`
	Language  string           `json:"language"`
	TestCases []model.TestCase `json:"test_cases"`

	// IdempotencyKey deduplicates retried requests. Optional.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ExecuteResponse is the synchronous reply: results directly for local runs,
// submission id plus processing status for delegated ones.
type ExecuteResponse struct {
	SubmissionID string                  `json:"submission_id"`
	Status       model.SubmissionStatus  `json:"status"`
	Results      *model.AggregatedReport `json:"results,omitempty"`

	// Outputs carries the native (non-flattened) per-case outputs for local
	// runs, kept distinct from the display-safe form inside Results.
	Outputs []interface{} `json:"outputs,omitempty"`
}

// Config wires the execution service.
type Config struct {
	Registry     *adapter.Registry
	Sandbox      sandbox.Sandbox
	Orchestrator BatchSubmitter
	Reconciler   Completer
	Store        store.SubmissionStore
	Limits       model.ResourceLimits

	// Optional collaborators.
	StatusCache *store.StatusCache
	Idempotency cache.Cache
	Archiver    *SnapshotArchiver
	Publisher   CompletionPublisher
	Signer      *CallbackSigner
}

// ExecutionService is the pipeline facade used by the HTTP surface.
type ExecutionService struct {
	registry     *adapter.Registry
	sandbox      sandbox.Sandbox
	orchestrator BatchSubmitter
	reconciler   Completer
	store        store.SubmissionStore
	limits       model.ResourceLimits

	statusCache *store.StatusCache
	idempotency cache.Cache
	archiver    *SnapshotArchiver
	publisher   CompletionPublisher
	signer      *CallbackSigner
}

// New creates the service. Registry, Sandbox, Orchestrator, Reconciler and
// Store are required.
func New(cfg Config) (*ExecutionService, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	return &ExecutionService{
		registry:     cfg.Registry,
		sandbox:      cfg.Sandbox,
		orchestrator: cfg.Orchestrator,
		reconciler:   cfg.Reconciler,
		store:        cfg.Store,
		limits:       cfg.Limits.Normalize(),
		statusCache:  cfg.StatusCache,
		idempotency:  cfg.Idempotency,
		archiver:     cfg.Archiver,
		publisher:    cfg.Publisher,
		signer:       cfg.Signer,
	}, nil
}

// Execute validates the request, creates the submission record and runs the
// static dispatch: local languages run synchronously in the sandbox,
// everything else is delegated and returns as soon as job handles exist.
func (s *ExecutionService) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	languageAdapter, err := s.registry.Get(req.Language)
	if err != nil {
		return nil, err
	}
	if len(req.TestCases) == 0 {
		return nil, errors.New(errors.NoTestCases)
	}
	if len(req.TestCases) > s.limits.MaxTestCases {
		return nil, errors.Newf(errors.TooManyTestCases, "%d test cases exceed the limit of %d",
			len(req.TestCases), s.limits.MaxTestCases)
	}
	if err := languageAdapter.Validate(req.Code); err != nil {
		return nil, err
	}

	if resp, done, err := s.checkIdempotency(ctx, req.IdempotencyKey); done {
		return resp, err
	}

	submission := &model.Submission{
		ID:        uuid.NewString(),
		Code:      req.Code,
		Language:  languageAdapter.Language(),
		TestCases: req.TestCases,
		Status:    model.StatusPending,
	}
	if err := s.store.Create(ctx, submission); err != nil {
		return nil, errors.Wrap(err, errors.SubmissionCreateFailed)
	}
	s.bindIdempotencyKey(ctx, req.IdempotencyKey, submission.ID)
	s.saveStatus(ctx, submission)

	harness, err := languageAdapter.BuildHarness(req.Code, req.TestCases)
	if err != nil {
		s.finishWithError(ctx, submission, err)
		return nil, err
	}

	if languageAdapter.Mode() == adapter.ModeLocal {
		return s.executeLocal(ctx, submission, harness)
	}
	return s.executeDelegated(ctx, submission, harness)
}

func (s *ExecutionService) executeLocal(ctx context.Context, submission *model.Submission, harness adapter.Harness) (*ExecuteResponse, error) {
	capture, err := s.sandbox.Run(ctx, sandbox.Program{
		Source:   harness.Source,
		FileName: harness.FileName,
		RunCmd:   harness.RunCmd,
	}, s.localLimits(submission.TestCases))

	var report model.AggregatedReport
	status := model.StatusCompleted
	var outputs []interface{}

	if err != nil {
		// Sandbox infrastructure failure in both tiers: turned into a
		// failed report rather than propagated.
		logger.Error(ctx, "sandbox infrastructure failure",
			zap.String("submission_id", submission.ID), zap.Error(err))
		report = model.AggregatedReport{
			TestCasesTotal: len(submission.TestCases),
			Error:          fmt.Sprintf("execution environment failure: %s", err.Error()),
		}
		status = model.StatusError
	} else {
		verdicts := adapter.ParseLocalOutput(capture, len(submission.TestCases))
		report = aggregator.Aggregate(verdicts, submission.TestCases)
		outputs = aggregator.NativeOutputs(verdicts)
	}

	if err := s.store.Update(ctx, submission.ID, store.Update{Status: status, Results: &report}); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	submission.Status = status
	submission.Results = &report
	s.saveStatus(ctx, submission)
	s.publishCompletion(ctx, submission)
	s.archive(ctx, submission, harness.Source)

	return &ExecuteResponse{
		SubmissionID: submission.ID,
		Status:       status,
		Results:      &report,
		Outputs:      outputs,
	}, nil
}

func (s *ExecutionService) executeDelegated(ctx context.Context, submission *model.Submission, harness adapter.Harness) (*ExecuteResponse, error) {
	if _, err := s.orchestrator.Submit(ctx, submission, harness); err != nil {
		if errors.Is(err, errors.MissingJobHandles) {
			submission.Status = model.StatusError
			s.saveStatus(ctx, submission)
			s.publishCompletion(ctx, submission)
		}
		return nil, err
	}
	submission.Status = model.StatusProcessing
	s.saveStatus(ctx, submission)
	s.archive(ctx, submission, harness.Source)

	return &ExecuteResponse{
		SubmissionID: submission.ID,
		Status:       model.StatusProcessing,
	}, nil
}

// Status reconciles and reports one submission. Terminal submissions are
// pure reads; in-flight delegated ones poll the judge in a single batched
// call.
func (s *ExecutionService) Status(ctx context.Context, submissionID string) (*model.Submission, error) {
	submission, err := s.reconciler.Reconcile(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	s.saveStatus(ctx, submission)
	return submission, nil
}

// Await blocks until the submission is terminal or the policy's window
// closes. The record is never mutated by a client-visible timeout.
func (s *ExecutionService) Await(ctx context.Context, submissionID string, policy reconciler.Policy) (*model.Submission, error) {
	submission, err := s.reconciler.WaitForCompletion(ctx, submissionID, policy)
	if err != nil {
		return nil, err
	}
	s.saveStatus(ctx, submission)
	return submission, nil
}

// HandleCallback processes a judge push callback. The token must verify and
// match the submission in the route; the verdict itself is re-fetched via
// the batched status call so callback and poll share one transition.
func (s *ExecutionService) HandleCallback(ctx context.Context, submissionID, token string) (*model.Submission, error) {
	if s.signer != nil {
		subject, err := s.signer.Verify(token)
		if err != nil {
			return nil, err
		}
		if subject != submissionID {
			return nil, errors.New(errors.CallbackRejected).
				WithMessage("callback token bound to a different submission")
		}
	}
	return s.Status(ctx, submissionID)
}

// CallbackURLBuilder returns the function the orchestrator uses to build
// per-submission callback URLs, or nil when baseURL is empty and callbacks
// are disabled.
func CallbackURLBuilder(baseURL string, signer *CallbackSigner) func(string) string {
	if baseURL == "" {
		return nil
	}
	return func(submissionID string) string {
		url := fmt.Sprintf("%s/api/v1/executions/%s/callback", baseURL, submissionID)
		if signer == nil {
			return url
		}
		token, err := signer.Sign(submissionID)
		if err != nil {
			return url
		}
		return url + "?token=" + token
	}
}

// localLimits sizes one sandbox run that covers every test case: the time
// budget is the sum of per-case budgets, memory the largest per-case
// ceiling.
func (s *ExecutionService) localLimits(testCases []model.TestCase) sandbox.Limits {
	var totalTimeout, maxMemory int64
	for _, tc := range testCases {
		timeoutMs, memoryMb := s.limits.ForCase(tc)
		totalTimeout += timeoutMs
		if memoryMb > maxMemory {
			maxMemory = memoryMb
		}
	}
	return sandbox.Limits{
		TimeoutMs:      totalTimeout,
		MemoryLimitMb:  maxMemory,
		MaxOutputBytes: s.limits.MaxOutputBytes,
		NetworkEnabled: s.limits.NetworkEnabled,
	}
}

func (s *ExecutionService) checkIdempotency(ctx context.Context, key string) (*ExecuteResponse, bool, error) {
	if key == "" || s.idempotency == nil {
		return nil, false, nil
	}
	existing, err := s.idempotency.Get(ctx, idempotencyKeyPrefix+key)
	if err != nil || existing == "" {
		return nil, false, nil
	}
	submission, err := s.store.Get(ctx, existing)
	if err != nil {
		return nil, true, errors.New(errors.DuplicateSubmission).
			WithDetail("idempotency_key", key)
	}
	return &ExecuteResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Results:      submission.Results,
	}, true, nil
}

func (s *ExecutionService) bindIdempotencyKey(ctx context.Context, key, submissionID string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if _, err := s.idempotency.SetNX(ctx, idempotencyKeyPrefix+key, submissionID, idempotencyTTL); err != nil {
		logger.Warn(ctx, "bind idempotency key failed",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func (s *ExecutionService) finishWithError(ctx context.Context, submission *model.Submission, cause error) {
	report := model.AggregatedReport{
		TestCasesTotal: len(submission.TestCases),
		Error:          cause.Error(),
	}
	if err := s.store.Update(ctx, submission.ID, store.Update{
		Status:  model.StatusError,
		Results: &report,
	}); err != nil {
		logger.Error(ctx, "persist error status failed",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}
	submission.Status = model.StatusError
	submission.Results = &report
	s.saveStatus(ctx, submission)
}

func (s *ExecutionService) saveStatus(ctx context.Context, submission *model.Submission) {
	if s.statusCache == nil || submission == nil {
		return
	}
	if err := s.statusCache.Save(ctx, store.StatusSnapshot{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Results:      submission.Results,
	}); err != nil {
		logger.Warn(ctx, "save status snapshot failed",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

func (s *ExecutionService) publishCompletion(ctx context.Context, submission *model.Submission) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCompletion(ctx, submission); err != nil {
		logger.Warn(ctx, "publish completion event failed",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

func (s *ExecutionService) archive(ctx context.Context, submission *model.Submission, program string) {
	if s.archiver == nil {
		return
	}
	archived := submission.Clone()
	go s.archiver.Archive(context.WithoutCancel(ctx), archived, program)
}
