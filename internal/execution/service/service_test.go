package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

type fakeSandbox struct {
	capture sandbox.Capture
	err     error
	limits  sandbox.Limits
}

func (f *fakeSandbox) Run(ctx context.Context, program sandbox.Program, limits sandbox.Limits) (sandbox.Capture, error) {
	f.limits = limits
	return f.capture, f.err
}

type fakeOrchestrator struct {
	handles []string
	err     error
	store   store.SubmissionStore
}

func (f *fakeOrchestrator) Submit(ctx context.Context, submission *model.Submission, harness adapter.Harness) ([]string, error) {
	if f.err != nil {
		if errors.Is(f.err, errors.MissingJobHandles) && f.store != nil {
			_ = f.store.Update(ctx, submission.ID, store.Update{Status: model.StatusError})
		}
		return nil, f.err
	}
	if f.store != nil {
		_ = f.store.Update(ctx, submission.ID, store.Update{
			Status:     model.StatusProcessing,
			JobHandles: f.handles,
		})
	}
	return f.handles, nil
}

type fakeCompleter struct {
	store store.SubmissionStore
}

func (f *fakeCompleter) Reconcile(ctx context.Context, submissionID string) (*model.Submission, error) {
	sub, err := f.store.Get(ctx, submissionID)
	if err != nil {
		return nil, errors.New(errors.SubmissionNotFound)
	}
	return sub, nil
}

func (f *fakeCompleter) WaitForCompletion(ctx context.Context, submissionID string, policy reconciler.Policy) (*model.Submission, error) {
	return f.Reconcile(ctx, submissionID)
}

type memStore struct {
	mu          sync.Mutex
	submissions map[string]*model.Submission
}

func newMemStore() *memStore {
	return &memStore{submissions: make(map[string]*model.Submission)}
}

func (s *memStore) Create(ctx context.Context, submission *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[submission.ID] = submission.Clone()
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, store.ErrSubmissionNotFound
	}
	return sub.Clone(), nil
}

func (s *memStore) Update(ctx context.Context, id string, update store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return store.ErrSubmissionNotFound
	}
	sub.Status = update.Status
	if update.Results != nil {
		sub.Results = update.Results.Clone()
	}
	if update.JobHandles != nil {
		sub.JobHandles = append([]string(nil), update.JobHandles...)
	}
	return nil
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type serviceDeps struct {
	sandbox      *fakeSandbox
	orchestrator *fakeOrchestrator
	store        *memStore
}

func newService(t *testing.T, mutate func(*serviceDeps)) (*ExecutionService, *serviceDeps) {
	t.Helper()
	deps := &serviceDeps{
		sandbox:      &fakeSandbox{},
		orchestrator: &fakeOrchestrator{},
		store:        newMemStore(),
	}
	if mutate != nil {
		mutate(deps)
	}
	deps.orchestrator.store = deps.store

	svc, err := New(Config{
		Registry:     adapter.DefaultRegistry(),
		Sandbox:      deps.sandbox,
		Orchestrator: deps.orchestrator,
		Reconciler:   &fakeCompleter{store: deps.store},
		Store:        deps.store,
		Limits:       model.DefaultResourceLimits(),
		Idempotency:  newTestCache(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc, deps
}

const addCode = "def solution(a, b):\n    return a + b"

func addRequest() ExecuteRequest {
	return ExecuteRequest{
		Code:     addCode,
		Language: "python",
		TestCases: []model.TestCase{
			{Stdin: "[2,3]", ExpectedStdout: "5"},
		},
	}
}

func TestExecuteLocalSuccess(t *testing.T) {
	t.Parallel()

	svc, deps := newService(t, func(d *serviceDeps) {
		d.sandbox.capture = sandbox.Capture{
			Output:  `{"results":[{"output":5,"error":null,"timeMs":1.2}]}` + "\n",
			Metrics: sandbox.Metrics{ExecutionTimeMs: 3, MemoryUsageKb: 1024},
		}
	})

	resp, err := svc.Execute(context.Background(), addRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", resp.Status)
	}
	if resp.Results == nil || !resp.Results.Passed || resp.Results.TestCasesPassed != 1 || resp.Results.TestCasesTotal != 1 {
		t.Errorf("Results = %+v", resp.Results)
	}
	if len(resp.Outputs) != 1 {
		t.Fatalf("Outputs = %v", resp.Outputs)
	}
	if got, ok := resp.Outputs[0].(float64); !ok || got != 5 {
		t.Errorf("native output = %v (%T), want 5", resp.Outputs[0], resp.Outputs[0])
	}

	stored, err := deps.store.Get(context.Background(), resp.SubmissionID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.StatusCompleted || stored.Results == nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestExecuteLocalUserError(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(d *serviceDeps) {
		d.sandbox.capture = sandbox.Capture{
			Output: sandbox.ErrorMarker + "name 'bogus' is not defined\n" +
				`{"results":[{"output":null,"error":"name 'bogus' is not defined","timeMs":0.3}]}` + "\n",
		}
	})

	resp, err := svc.Execute(context.Background(), addRequest())
	if err != nil {
		t.Fatalf("user-code failure must not surface as an error: %v", err)
	}
	if resp.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", resp.Status)
	}
	if resp.Results.Passed || resp.Results.TestCasesPassed != 0 {
		t.Errorf("Results = %+v", resp.Results)
	}
	if resp.Results.Error == "" {
		t.Error("report error must carry the captured failure text")
	}
}

func TestExecuteLocalInfraFailure(t *testing.T) {
	t.Parallel()

	svc, deps := newService(t, func(d *serviceDeps) {
		d.sandbox.err = fmt.Errorf("interpreter not found")
	})

	resp, err := svc.Execute(context.Background(), addRequest())
	if err != nil {
		t.Fatalf("infra failure must become a failed report, got error: %v", err)
	}
	if resp.Status != model.StatusError {
		t.Errorf("Status = %q, want error", resp.Status)
	}
	if resp.Results == nil || resp.Results.Error == "" {
		t.Errorf("Results = %+v", resp.Results)
	}
	if resp.Results.TestCasesTotal != 1 {
		t.Errorf("TestCasesTotal = %d, want 1", resp.Results.TestCasesTotal)
	}

	stored, _ := deps.store.Get(context.Background(), resp.SubmissionID)
	if stored.Status != model.StatusError {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestExecuteLocalLimitsCoverAllCases(t *testing.T) {
	t.Parallel()

	svc, deps := newService(t, func(d *serviceDeps) {
		d.sandbox.capture = sandbox.Capture{
			Output: `{"results":[{"output":1,"error":null},{"output":2,"error":null}]}` + "\n",
		}
	})

	req := addRequest()
	req.TestCases = []model.TestCase{
		{Stdin: "[1,0]", ExpectedStdout: "1"},
		{Stdin: "[1,1]", ExpectedStdout: "2", TimeLimitMs: 2000},
	}
	if _, err := svc.Execute(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	defaults := model.DefaultResourceLimits()
	wantTimeout := defaults.TimeoutMs + 2000
	if deps.sandbox.limits.TimeoutMs != wantTimeout {
		t.Errorf("TimeoutMs = %d, want %d", deps.sandbox.limits.TimeoutMs, wantTimeout)
	}
}

func TestExecuteDelegated(t *testing.T) {
	t.Parallel()

	svc, deps := newService(t, func(d *serviceDeps) {
		d.orchestrator.handles = []string{"tok-1"}
	})

	req := ExecuteRequest{
		Code:      "#include <iostream>\nint main() { return 0; }",
		Language:  "cpp",
		TestCases: []model.TestCase{{Stdin: "1", ExpectedStdout: "1"}},
	}
	resp, err := svc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != model.StatusProcessing {
		t.Errorf("Status = %q, want processing", resp.Status)
	}
	if resp.Results != nil {
		t.Error("delegated execution must not return results synchronously")
	}

	stored, _ := deps.store.Get(context.Background(), resp.SubmissionID)
	if len(stored.JobHandles) != 1 || stored.JobHandles[0] != "tok-1" {
		t.Errorf("stored handles = %v", stored.JobHandles)
	}
}

func TestExecuteDelegatedMissingHandles(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(d *serviceDeps) {
		d.orchestrator.err = errors.MissingHandlesError(2, 1)
	})

	req := ExecuteRequest{
		Code:     "int main() { return 0; }",
		Language: "cpp",
		TestCases: []model.TestCase{
			{Stdin: "1", ExpectedStdout: "1"},
			{Stdin: "2", ExpectedStdout: "2"},
		},
	}
	_, err := svc.Execute(context.Background(), req)
	if !errors.Is(err, errors.MissingJobHandles) {
		t.Fatalf("code = %v, want MissingJobHandles", errors.GetCode(err))
	}
}

func TestExecuteValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ExecuteRequest
		code errors.ErrorCode
	}{
		{"unsupported language", ExecuteRequest{Code: "x", Language: "cobol",
			TestCases: []model.TestCase{{}}}, errors.LanguageNotSupported},
		{"no test cases", ExecuteRequest{Code: addCode, Language: "python"}, errors.NoTestCases},
		{"forbidden code", ExecuteRequest{Code: "import os\ndef solution():\n    pass",
			Language: "python", TestCases: []model.TestCase{{}}}, errors.ValidationFailed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Execute(ctx, tt.req)
			if !errors.Is(err, tt.code) {
				t.Errorf("code = %v, want %v", errors.GetCode(err), tt.code)
			}
		})
	}
}

func TestExecuteTooManyTestCases(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	req := addRequest()
	req.TestCases = make([]model.TestCase, model.DefaultResourceLimits().MaxTestCases+1)
	_, err := svc.Execute(context.Background(), req)
	if !errors.Is(err, errors.TooManyTestCases) {
		t.Errorf("code = %v, want TooManyTestCases", errors.GetCode(err))
	}
}

func TestExecuteIdempotency(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(d *serviceDeps) {
		d.sandbox.capture = sandbox.Capture{
			Output: `{"results":[{"output":5,"error":null}]}` + "\n",
		}
	})

	req := addRequest()
	req.IdempotencyKey = "req-42"

	first, err := svc.Execute(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Execute(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.SubmissionID != second.SubmissionID {
		t.Errorf("retried request created a new submission: %s vs %s",
			first.SubmissionID, second.SubmissionID)
	}
	if second.Status != model.StatusCompleted {
		t.Errorf("replayed status = %q", second.Status)
	}
}

func TestHandleCallbackTokenChecks(t *testing.T) {
	t.Parallel()

	signer, err := NewCallbackSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	st := newMemStore()
	_ = st.Create(context.Background(), &model.Submission{ID: "sub-1", Status: model.StatusProcessing})
	svc, err := New(Config{
		Registry:     adapter.DefaultRegistry(),
		Sandbox:      &fakeSandbox{},
		Orchestrator: &fakeOrchestrator{},
		Reconciler:   &fakeCompleter{store: st},
		Store:        st,
		Limits:       model.DefaultResourceLimits(),
		Signer:       signer,
	})
	if err != nil {
		t.Fatal(err)
	}

	token, err := signer.Sign("sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.HandleCallback(context.Background(), "sub-1", token); err != nil {
		t.Fatalf("valid callback rejected: %v", err)
	}

	otherToken, _ := signer.Sign("sub-2")
	if _, err := svc.HandleCallback(context.Background(), "sub-1", otherToken); !errors.Is(err, errors.CallbackRejected) {
		t.Errorf("code = %v, want CallbackRejected", errors.GetCode(err))
	}

	if _, err := svc.HandleCallback(context.Background(), "sub-1", "garbage"); !errors.Is(err, errors.CallbackRejected) {
		t.Errorf("code = %v, want CallbackRejected", errors.GetCode(err))
	}
}
