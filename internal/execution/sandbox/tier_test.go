package sandbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedSandbox struct {
	capture Capture
	err     error
	calls   atomic.Int32
}

func (s *scriptedSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	s.calls.Add(1)
	return s.capture, s.err
}

func TestTieredPrefersFastTier(t *testing.T) {
	t.Parallel()

	fast := &scriptedSandbox{capture: Capture{Output: "fast"}}
	strict := &scriptedSandbox{capture: Capture{Output: "strict"}}
	tiered := NewTieredSandbox(fast, strict, TieredConfig{})

	capture, err := tiered.Run(context.Background(), Program{FileName: "main.py"}, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if capture.Output != "fast" {
		t.Errorf("Output = %q, want fast tier result", capture.Output)
	}
	if strict.calls.Load() != 0 {
		t.Error("strict tier must not run when fast tier succeeds")
	}
}

func TestTieredUserFailureDoesNotFallBack(t *testing.T) {
	t.Parallel()

	// A captured user-program failure is a nil-error outcome.
	fast := &scriptedSandbox{capture: Capture{Error: "Traceback: boom", TimedOut: false}}
	strict := &scriptedSandbox{}
	tiered := NewTieredSandbox(fast, strict, TieredConfig{})

	capture, err := tiered.Run(context.Background(), Program{FileName: "main.py"}, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if capture.Error == "" {
		t.Error("want captured user failure passed through")
	}
	if strict.calls.Load() != 0 {
		t.Error("user failure must not trigger the strict tier")
	}
}

func TestTieredInfraFailureFallsBack(t *testing.T) {
	t.Parallel()

	fast := &scriptedSandbox{err: fmt.Errorf("create work dir: disk full")}
	strict := &scriptedSandbox{capture: Capture{Output: "strict"}}
	tiered := NewTieredSandbox(fast, strict, TieredConfig{})

	capture, err := tiered.Run(context.Background(), Program{FileName: "main.py"}, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if capture.Output != "strict" {
		t.Errorf("Output = %q, want strict tier result", capture.Output)
	}
	if fast.calls.Load() != 1 || strict.calls.Load() != 1 {
		t.Errorf("calls = fast %d strict %d, want 1 each", fast.calls.Load(), strict.calls.Load())
	}
}

func TestTieredCancelledContextSkipsFallback(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fast := &scriptedSandbox{err: fmt.Errorf("killed")}
	strict := &scriptedSandbox{}
	tiered := NewTieredSandbox(fast, strict, TieredConfig{})

	cancel()
	_, err := tiered.Run(ctx, Program{FileName: "main.py"}, Limits{})
	if err == nil {
		t.Fatal("want error")
	}
	if strict.calls.Load() != 0 {
		t.Error("cancelled run must not fall back")
	}
}

func TestSlotLimiterBounds(t *testing.T) {
	t.Parallel()

	limiter := NewSlotLimiter(1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(ctx); err == nil {
		t.Fatal("second acquire should block until deadline")
	}

	limiter.Release()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
