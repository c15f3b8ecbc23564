package sandbox

import (
	"context"
	"strings"
)

// ErrorMarker prefixes lines on the sandbox's explicit error channel. The
// harness writes diagnostics with this prefix so callers can split the final
// result from error noise after the run.
const ErrorMarker = "__EXEC_ERROR__:"

// Program is a fully-assembled, self-contained program ready to run: user
// code already wrapped with its harness by an execution adapter.
type Program struct {
	// Source is the complete program text.
	Source string

	// FileName is the name the source is written under, e.g. "main.py".
	FileName string

	// RunCmd is the argv used to run the program. The file placeholder has
	// already been resolved by the adapter.
	RunCmd []string

	// Stdin is fed to the program, empty for harnessed local runs.
	Stdin string

	Env []string
}

// Limits bounds one sandbox run.
type Limits struct {
	TimeoutMs      int64
	MemoryLimitMb  int64
	MaxOutputBytes int64
	NetworkEnabled bool
}

// Metrics reports observed resource usage for one run.
type Metrics struct {
	ExecutionTimeMs float64
	MemoryUsageKb   int64
}

// Capture is the result of one sandbox run.
//
// A user-program failure (non-zero exit, uncaught exception, timeout) is a
// successfully-captured outcome: Error is populated and the run's Go error
// is nil. A non-nil Go error from Run means the sandbox infrastructure
// itself failed to execute the program.
type Capture struct {
	Output   string
	Error    string
	TimedOut bool
	Metrics  Metrics
}

// Sandbox executes one program synchronously under resource limits.
type Sandbox interface {
	Run(ctx context.Context, program Program, limits Limits) (Capture, error)
}

// SplitOutput separates regular output lines from error-marker lines,
// preserving order within each stream.
func SplitOutput(output string) (lines []string, errorLines []string) {
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), ErrorMarker); ok {
			errorLines = append(errorLines, strings.TrimSpace(rest))
			continue
		}
		lines = append(lines, line)
	}
	return lines, errorLines
}
