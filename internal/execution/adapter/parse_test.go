package adapter

import (
	"testing"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
)

func TestParseLocalOutputSummary(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{
		Output: "debug noise\n" +
			`{"results":[{"output":5,"error":null,"timeMs":1.5},{"output":"hello","error":null,"timeMs":0.4}]}` + "\n",
		Metrics: sandbox.Metrics{ExecutionTimeMs: 12, MemoryUsageKb: 2048},
	}

	verdicts := ParseLocalOutput(capture, 2)
	if len(verdicts) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(verdicts))
	}
	if verdicts[0].Status != model.VerdictSucceeded || verdicts[0].Stdout != "5" {
		t.Errorf("verdict[0] = %+v, want succeeded with stdout 5", verdicts[0])
	}
	if verdicts[1].Stdout != "hello" {
		t.Errorf("verdict[1].Stdout = %q, want unquoted string", verdicts[1].Stdout)
	}
	if verdicts[0].TimeMs != 1.5 {
		t.Errorf("verdict[0].TimeMs = %v, want 1.5", verdicts[0].TimeMs)
	}
	if verdicts[0].MemoryKb != 2048 {
		t.Errorf("verdict[0].MemoryKb = %v, want 2048", verdicts[0].MemoryKb)
	}
}

func TestParseLocalOutputStructuredValue(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{
		Output: `{"results":[{"output":[1,2,3],"error":null,"timeMs":2}]}` + "\n",
	}
	verdicts := ParseLocalOutput(capture, 1)
	if verdicts[0].Stdout != "[1,2,3]" {
		t.Errorf("Stdout = %q, want compact JSON array", verdicts[0].Stdout)
	}
}

func TestParseLocalOutputCaseError(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{
		Output: sandbox.ErrorMarker + "division by zero\n" +
			`{"results":[{"output":null,"error":"division by zero","timeMs":0.2}]}` + "\n",
	}
	verdicts := ParseLocalOutput(capture, 1)
	if verdicts[0].Status != model.VerdictFailed {
		t.Errorf("Status = %q, want failed", verdicts[0].Status)
	}
	if verdicts[0].Stderr != "division by zero" {
		t.Errorf("Stderr = %q", verdicts[0].Stderr)
	}
}

func TestParseLocalOutputErrorMarkerFallback(t *testing.T) {
	t.Parallel()

	// Program died before printing its summary; only the marker line remains.
	capture := sandbox.Capture{
		Output: "some partial output\n" + sandbox.ErrorMarker + "stack overflow\n",
	}
	verdicts := ParseLocalOutput(capture, 2)
	if len(verdicts) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(verdicts))
	}
	for i, v := range verdicts {
		if v.Status != model.VerdictFailed {
			t.Errorf("verdict[%d].Status = %q, want failed", i, v.Status)
		}
		if v.Stderr != "stack overflow" {
			t.Errorf("verdict[%d].Stderr = %q", i, v.Stderr)
		}
	}
}

func TestParseLocalOutputTimedOut(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{
		TimedOut: true,
		Error:    "time limit exceeded after 5000ms",
	}
	verdicts := ParseLocalOutput(capture, 3)
	if len(verdicts) != 3 {
		t.Fatalf("got %d verdicts, want 3", len(verdicts))
	}
	for _, v := range verdicts {
		if v.Status != model.VerdictTimedOut {
			t.Errorf("Status = %q, want timed_out", v.Status)
		}
	}
}

func TestParseLocalOutputMemoryExceeded(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{Error: "memory limit exceeded (256MB)"}
	verdicts := ParseLocalOutput(capture, 1)
	if verdicts[0].Status != model.VerdictMemoryExceeded {
		t.Errorf("Status = %q, want memory_exceeded", verdicts[0].Status)
	}
}

func TestParseLocalOutputGenericFailure(t *testing.T) {
	t.Parallel()

	capture := sandbox.Capture{Output: "just some text\nno json here\n"}
	verdicts := ParseLocalOutput(capture, 1)
	if verdicts[0].Status != model.VerdictFailed {
		t.Errorf("Status = %q, want failed", verdicts[0].Status)
	}
	if verdicts[0].Stderr != "could not parse execution results" {
		t.Errorf("Stderr = %q", verdicts[0].Stderr)
	}
}

func TestParseLocalOutputIgnoresTrailingNonSummaryJSON(t *testing.T) {
	t.Parallel()

	// A JSON line without a results key is user output, not the summary.
	capture := sandbox.Capture{
		Output: `{"results":[{"output":1,"error":null,"timeMs":1}]}` + "\n" +
			`{"debug":true}` + "\n",
	}
	verdicts := ParseLocalOutput(capture, 1)
	if len(verdicts) != 1 || verdicts[0].Stdout != "1" {
		t.Fatalf("verdicts = %+v, want the earlier summary line", verdicts)
	}
}
