package model

import (
	"time"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusError      SubmissionStatus = "error"
)

// IsTerminal reports whether the status is completed or error.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether the status is one of the known states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// TestCase is one input/expected-output pair.
type TestCase struct {
	Stdin          string `json:"stdin"`
	ExpectedStdout string `json:"expected_stdout"`
	IsSample       bool   `json:"is_sample"`

	// Per-case resource overrides. Zero means use the global defaults.
	TimeLimitMs   int64 `json:"time_limit_ms,omitempty"`
	MemoryLimitMb int64 `json:"memory_limit_mb,omitempty"`
}

// Submission is one user execution request and its persisted state machine.
type Submission struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"test_cases"`

	Status SubmissionStatus `json:"status"`

	// JobHandles are the opaque tokens returned by the external judge for a
	// delegated run, in test-case order. Empty for purely local runs.
	JobHandles []string `json:"job_handles,omitempty"`

	// Results is the last computed aggregated report, nil until available.
	Results *AggregatedReport `json:"results,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the submission. Callers receive copies so
// stored state can only change through the store contract.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	out.TestCases = append([]TestCase(nil), s.TestCases...)
	out.JobHandles = append([]string(nil), s.JobHandles...)
	out.Results = s.Results.Clone()
	return &out
}
