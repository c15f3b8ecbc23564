package model

// VerdictStatus is the raw per-test-case outcome reported by a sandbox run
// or by the external judge.
type VerdictStatus string

const (
	VerdictQueued         VerdictStatus = "queued"
	VerdictRunning        VerdictStatus = "running"
	VerdictSucceeded      VerdictStatus = "succeeded"
	VerdictFailed         VerdictStatus = "failed"
	VerdictTimedOut       VerdictStatus = "timed_out"
	VerdictMemoryExceeded VerdictStatus = "memory_exceeded"
	VerdictCompileError   VerdictStatus = "compile_error"
	VerdictInternalError  VerdictStatus = "internal_error"
)

// IsTerminal reports whether the remote job finished, successfully or not.
func (v VerdictStatus) IsTerminal() bool {
	return v != VerdictQueued && v != VerdictRunning
}

// Verdict is the raw result for one test case.
type Verdict struct {
	Status        VerdictStatus `json:"status"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	CompileOutput string        `json:"compile_output,omitempty"`

	// TimeMs is wall-clock execution time in milliseconds.
	TimeMs float64 `json:"time_ms"`

	// MemoryKb is peak memory in kilobytes.
	MemoryKb int64 `json:"memory_kb"`
}

// TestResult is the per-case breakdown inside an aggregated report.
type TestResult struct {
	TestCase TestCase `json:"test_case"`
	Passed   bool     `json:"passed"`

	// ActualOutput holds the display-safe serialization of the program's
	// output for this case.
	ActualOutput string `json:"actual_output"`

	Status VerdictStatus `json:"status"`
	Stderr string        `json:"stderr,omitempty"`
	TimeMs float64       `json:"time_ms"`
}

// AggregatedReport is the consolidated pass/fail summary for one submission.
type AggregatedReport struct {
	// Passed is true iff every test case's verdict succeeded and its actual
	// output matched the expected output.
	Passed bool `json:"passed"`

	TestCasesPassed int `json:"test_cases_passed"`

	// TestCasesTotal always equals the number of submitted test cases,
	// regardless of how many verdicts came back.
	TestCasesTotal int `json:"test_cases_total"`

	// ExecutionTimeMs is the summed execution time across cases.
	ExecutionTimeMs float64 `json:"execution_time_ms"`

	// MemoryUsageKb is the peak memory across cases.
	MemoryUsageKb int64 `json:"memory_usage_kb"`

	// Error describes a batch-level scoring failure, distinct from
	// individual test-case failures.
	Error string `json:"error,omitempty"`

	TestResults []TestResult `json:"test_results"`
}

// Clone returns a deep copy of the report.
func (r *AggregatedReport) Clone() *AggregatedReport {
	if r == nil {
		return nil
	}
	out := *r
	out.TestResults = append([]TestResult(nil), r.TestResults...)
	return &out
}
