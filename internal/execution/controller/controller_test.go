package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/suchitj2702/algo-irl/internal/execution/adapter"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
	"github.com/suchitj2702/algo-irl/internal/execution/service"
	"github.com/suchitj2702/algo-irl/internal/execution/store"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

type fakeSandbox struct {
	capture sandbox.Capture
}

func (f *fakeSandbox) Run(ctx context.Context, program sandbox.Program, limits sandbox.Limits) (sandbox.Capture, error) {
	return f.capture, nil
}

type fakeOrchestrator struct {
	handles []string
	store   store.SubmissionStore
}

func (f *fakeOrchestrator) Submit(ctx context.Context, submission *model.Submission, harness adapter.Harness) ([]string, error) {
	_ = f.store.Update(ctx, submission.ID, store.Update{
		Status:     model.StatusProcessing,
		JobHandles: f.handles,
	})
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

type apiEnvelope struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
}

func newTestRouter(t *testing.T, capture sandbox.Capture) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newMemStore()
	svc, err := service.New(service.Config{
		Registry:     adapter.DefaultRegistry(),
		Sandbox:      &fakeSandbox{capture: capture},
		Orchestrator: &fakeOrchestrator{handles: []string{"tok-1"}, store: st},
		Reconciler:   &fakeCompleter{store: st},
		Store:        st,
		Limits:       model.DefaultResourceLimits(),
	})
	if err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	NewController(svc, reconciler.Policy{MaxWait: time.Second, Interval: 10 * time.Millisecond}).
		RegisterRoutes(router)
	return router, st
}

func TestExecuteEndpointLocal(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, sandbox.Capture{
		Output: `{"results":[{"output":5,"error":null,"timeMs":1}]}` + "\n",
	})

	body := `{"code":"def solution(a, b):\n    return a + b","language":"python","test_cases":[{"stdin":"[2,3]","expected_stdout":"5"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Code != errors.Success {
		t.Fatalf("code = %v, message = %s", envelope.Code, envelope.Message)
	}

	var resp service.ExecuteResponse
	if err := json.Unmarshal(envelope.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != model.StatusCompleted || resp.Results == nil || !resp.Results.Passed {
		t.Errorf("resp = %+v", resp)
	}
}

func TestExecuteEndpointRejectsBadBody(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, sandbox.Capture{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	router, st := newTestRouter(t, sandbox.Capture{})
	_ = st.Create(context.Background(), &model.Submission{
		ID:     "sub-1",
		Status: model.StatusProcessing,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/sub-1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var envelope apiEnvelope
	_ = json.Unmarshal(w.Body.Bytes(), &envelope)
	var data struct {
		Status model.SubmissionStatus `json:"status"`
	}
	_ = json.Unmarshal(envelope.Data, &data)
	if data.Status != model.StatusProcessing {
		t.Errorf("status = %q, want processing", data.Status)
	}
}

func TestStatusEndpointUnknownSubmission(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, sandbox.Capture{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/ghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

type flakyCompleter struct{}

func (f *flakyCompleter) Reconcile(ctx context.Context, submissionID string) (*model.Submission, error) {
	return nil, errors.New(errors.ExternalServiceError)
}

func (f *flakyCompleter) WaitForCompletion(ctx context.Context, submissionID string, policy reconciler.Policy) (*model.Submission, error) {
	return nil, errors.New(errors.ExternalServiceError)
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	st := newMemStore()
	svc, err := service.New(service.Config{
		Registry:     adapter.DefaultRegistry(),
		Sandbox:      &fakeSandbox{},
		Orchestrator: &fakeOrchestrator{handles: []string{"tok-1"}, store: st},
		Reconciler:   &flakyCompleter{},
		Store:        st,
		Limits:       model.DefaultResourceLimits(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	// A long interval makes the retry pause the dominant cost; the stream
	// must still shut down as soon as the request context is cancelled.
	NewController(svc, reconciler.Policy{MaxWait: time.Minute, Interval: 30 * time.Second}).
		RegisterRoutes(router)

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/executions/sub-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var frame struct {
		TransientError bool `json:"transient_error"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if !frame.TransientError {
		t.Fatalf("frame = %+v, want transient error notice", frame)
	}

	start := time.Now()
	cancel()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the stream after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("stream took %s to stop after cancel", elapsed)
	}
}

func TestCallbackEndpoint(t *testing.T) {
	t.Parallel()

	router, st := newTestRouter(t, sandbox.Capture{})
	_ = st.Create(context.Background(), &model.Submission{
		ID:     "sub-1",
		Status: model.StatusProcessing,
	})

	body := `{"token":"tok-1","status":{"id":3,"description":"Accepted"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/executions/sub-1/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
