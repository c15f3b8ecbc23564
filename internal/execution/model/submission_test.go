package model

import "testing"

func TestSubmissionStatusIsTerminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status SubmissionStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusError, true},
	}
	for _, tc := range cases {
		if got := tc.status.IsTerminal(); got != tc.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tc.status, got, tc.want)
		}
	}
	if SubmissionStatus("bogus").Valid() {
		t.Error("bogus status must not be valid")
	}
}

func TestSubmissionCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := &Submission{
		ID:         "sub-1",
		TestCases:  []TestCase{{Stdin: "[1]", ExpectedStdout: "1"}},
		JobHandles: []string{"tok-1"},
		Results: &AggregatedReport{
			TestCasesTotal: 1,
			TestResults:    []TestResult{{Passed: true}},
		},
	}

	clone := original.Clone()
	clone.TestCases[0].Stdin = "[2]"
	clone.JobHandles[0] = "tok-2"
	clone.Results.TestResults[0].Passed = false

	if original.TestCases[0].Stdin != "[1]" {
		t.Error("test cases shared between clone and original")
	}
	if original.JobHandles[0] != "tok-1" {
		t.Error("job handles shared between clone and original")
	}
	if !original.Results.TestResults[0].Passed {
		t.Error("results shared between clone and original")
	}

	var nilSub *Submission
	if nilSub.Clone() != nil {
		t.Error("nil clone must stay nil")
	}
}

func TestResourceLimitsForCase(t *testing.T) {
	t.Parallel()

	limits := DefaultResourceLimits()

	timeoutMs, memoryMb := limits.ForCase(TestCase{})
	if timeoutMs != limits.TimeoutMs || memoryMb != limits.MemoryLimitMb {
		t.Errorf("defaults = (%d, %d)", timeoutMs, memoryMb)
	}

	timeoutMs, memoryMb = limits.ForCase(TestCase{TimeLimitMs: 2000, MemoryLimitMb: 64})
	if timeoutMs != 2000 || memoryMb != 64 {
		t.Errorf("overrides = (%d, %d), want (2000, 64)", timeoutMs, memoryMb)
	}
}

func TestResourceLimitsNormalize(t *testing.T) {
	t.Parallel()

	got := ResourceLimits{TimeoutMs: -1}.Normalize()
	def := DefaultResourceLimits()
	if got.TimeoutMs != def.TimeoutMs || got.MemoryLimitMb != def.MemoryLimitMb ||
		got.MaxOutputBytes != def.MaxOutputBytes || got.MaxTestCases != def.MaxTestCases {
		t.Errorf("Normalize() = %+v, want defaults filled", got)
	}

	kept := ResourceLimits{TimeoutMs: 100, MemoryLimitMb: 32, MaxOutputBytes: 10, MaxTestCases: 2}.Normalize()
	if kept.TimeoutMs != 100 || kept.MemoryLimitMb != 32 || kept.MaxOutputBytes != 10 || kept.MaxTestCases != 2 {
		t.Errorf("Normalize() overwrote explicit values: %+v", kept)
	}
}
