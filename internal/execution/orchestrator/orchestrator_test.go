package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/judge0"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

type fakeJudge struct {
	entries []judge0.Entry
	handles []string
	err     error
}

func (f *fakeJudge) SubmitBatch(ctx context.Context, entries []judge0.Entry) ([]string, error) {
	f.entries = entries
	if f.err != nil {
		return nil, f.err
	}
	return f.handles, nil
}

type fakeStore struct {
	updates map[string][]store.Update
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[string][]store.Update)}
}

func (f *fakeStore) Create(ctx context.Context, submission *model.Submission) error { return nil }

func (f *fakeStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	return nil, store.ErrSubmissionNotFound
}

func (f *fakeStore) Update(ctx context.Context, id string, update store.Update) error {
	f.updates[id] = append(f.updates[id], update)
	return nil
}

func (f *fakeStore) lastUpdate(id string) (store.Update, bool) {
	updates := f.updates[id]
	if len(updates) == 0 {
		return store.Update{}, false
	}
	return updates[len(updates)-1], true
}

func testSubmission() *model.Submission {
	return &model.Submission{
		ID:       "sub-1",
		Language: "cpp",
		Status:   model.StatusPending,
		TestCases: []model.TestCase{
			{Stdin: "[2,3]", ExpectedStdout: "5"},
			{Stdin: "[7,1]", ExpectedStdout: "8", TimeLimitMs: 2000, MemoryLimitMb: 64},
		},
	}
}

func testHarness() adapter.Harness {
	return adapter.Harness{Source: "int main() {}", FileName: "main.cpp", JudgeLanguageID: 54}
}

func newOrchestrator(t *testing.T, judge JudgeSubmitter, st store.SubmissionStore) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Judge:  judge,
		Store:  st,
		Limits: model.DefaultResourceLimits(),
		CallbackURL: func(id string) string {
			return "https://svc.test/callback/" + id
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestSubmitPersistsOrderedHandles(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{handles: []string{"tok-a", "tok-b"}}
	st := newFakeStore()
	o := newOrchestrator(t, judge, st)

	handles, err := o.Submit(context.Background(), testSubmission(), testHarness())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(handles) != 2 || handles[0] != "tok-a" || handles[1] != "tok-b" {
		t.Fatalf("handles = %v", handles)
	}

	update, ok := st.lastUpdate("sub-1")
	if !ok {
		t.Fatal("handles were not persisted")
	}
	if update.Status != model.StatusProcessing {
		t.Errorf("Status = %q, want processing", update.Status)
	}
	if len(update.JobHandles) != 2 || update.JobHandles[0] != "tok-a" {
		t.Errorf("persisted handles = %v", update.JobHandles)
	}
}

func TestSubmitBuildsOneEntryPerCase(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{handles: []string{"a", "b"}}
	o := newOrchestrator(t, judge, newFakeStore())

	if _, err := o.Submit(context.Background(), testSubmission(), testHarness()); err != nil {
		t.Fatal(err)
	}
	if len(judge.entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(judge.entries))
	}

	defaults := model.DefaultResourceLimits()
	first := judge.entries[0]
	if first.Stdin != "[2,3]" || first.ExpectedOutput != "5" {
		t.Errorf("entry[0] = %+v", first)
	}
	if first.CPUTimeLimitSec != float64(defaults.TimeoutMs)/1000 {
		t.Errorf("entry[0] cpu limit = %v, want default", first.CPUTimeLimitSec)
	}
	if first.CallbackURL != "https://svc.test/callback/sub-1" {
		t.Errorf("callback url = %q", first.CallbackURL)
	}

	// The second case carries its own overrides.
	second := judge.entries[1]
	if second.CPUTimeLimitSec != 2 {
		t.Errorf("entry[1] cpu limit = %v, want 2s override", second.CPUTimeLimitSec)
	}
	if second.MemoryLimitKb != 64*1024 {
		t.Errorf("entry[1] memory = %v, want 64MB override", second.MemoryLimitKb)
	}
}

func TestSubmitMissingHandles(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{handles: []string{"only-one"}}
	st := newFakeStore()
	o := newOrchestrator(t, judge, st)

	_, err := o.Submit(context.Background(), testSubmission(), testHarness())
	if err == nil {
		t.Fatal("expected missing-handles error")
	}
	if !errors.Is(err, errors.MissingJobHandles) {
		t.Errorf("code = %v, want MissingJobHandles", errors.GetCode(err))
	}

	update, ok := st.lastUpdate("sub-1")
	if !ok || update.Status != model.StatusError {
		t.Errorf("submission must transition to error, got %+v", update)
	}
}

func TestSubmitTransientJudgeFailure(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{err: errors.ExternalError(fmt.Errorf("connection refused"))}
	st := newFakeStore()
	o := newOrchestrator(t, judge, st)

	_, err := o.Submit(context.Background(), testSubmission(), testHarness())
	if !errors.Is(err, errors.ExternalServiceError) {
		t.Fatalf("code = %v, want ExternalServiceError", errors.GetCode(err))
	}
	if len(st.updates) != 0 {
		t.Error("transient failure must not mutate the record")
	}
}

func TestSubmitNoTestCases(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, &fakeJudge{}, newFakeStore())
	_, err := o.Submit(context.Background(), &model.Submission{ID: "x"}, testHarness())
	if !errors.Is(err, errors.NoTestCases) {
		t.Errorf("code = %v, want NoTestCases", errors.GetCode(err))
	}
}
