package aggregator

import (
	"fmt"
	"strings"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
)

// Aggregate reduces per-test-case verdicts plus the original test cases into
// one consolidated report. It is a pure function: same inputs, same report.
//
// TestCasesTotal always equals len(testCases). A verdict/test-case count
// mismatch is reported through the report's Error field, never by panicking
// or dropping cases silently.
func Aggregate(verdicts []model.Verdict, testCases []model.TestCase) model.AggregatedReport {
	report := model.AggregatedReport{
		TestCasesTotal: len(testCases),
		TestResults:    make([]model.TestResult, 0, len(testCases)),
	}

	if len(verdicts) != len(testCases) {
		report.Error = fmt.Sprintf("verdict count %d does not match test case count %d", len(verdicts), len(testCases))
	}

	n := len(verdicts)
	if len(testCases) < n {
		n = len(testCases)
	}

	var peakMemory int64
	for i := 0; i < n; i++ {
		verdict := verdicts[i]
		tc := testCases[i]

		passed := verdict.Status == model.VerdictSucceeded &&
			NormalizeOutput(verdict.Stdout) == NormalizeOutput(tc.ExpectedStdout)

		report.TestResults = append(report.TestResults, model.TestResult{
			TestCase:     tc,
			Passed:       passed,
			ActualOutput: displayOutput(verdict.Stdout),
			Status:       verdict.Status,
			Stderr:       verdict.Stderr,
			TimeMs:       verdict.TimeMs,
		})
		if passed {
			report.TestCasesPassed++
		}
		report.ExecutionTimeMs += verdict.TimeMs
		if verdict.MemoryKb > peakMemory {
			peakMemory = verdict.MemoryKb
		}
	}
	report.MemoryUsageKb = peakMemory

	report.Passed = report.Error == "" &&
		report.TestCasesTotal > 0 &&
		report.TestCasesPassed == report.TestCasesTotal

	if report.Error == "" && !report.Passed {
		if msg := firstFailureMessage(verdicts); msg != "" {
			report.Error = msg
		}
	}

	return report
}

// NormalizeOutput is the comparison normalization applied to both actual and
// expected output before the byte-for-byte check: trailing whitespace on each
// line and surrounding blank lines are ignored, nothing else.
func NormalizeOutput(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// NativeOutputs returns the per-case outputs in their native structure for
// the synchronous reply to the original caller. This is the counterpart of
// the display-safe serialization persisted in the report.
func NativeOutputs(verdicts []model.Verdict) []interface{} {
	outputs := make([]interface{}, 0, len(verdicts))
	for _, verdict := range verdicts {
		value := ParseValue(verdict.Stdout)
		if value.Kind == KindUnrepresentable {
			// Plain text output is representable as itself.
			outputs = append(outputs, verdict.Stdout)
			continue
		}
		outputs = append(outputs, value.Native())
	}
	return outputs
}

// displayOutput produces the display-safe form of a captured output: JSON
// payloads are flattened through the value union, anything else is kept as
// the raw text.
func displayOutput(stdout string) string {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	value := ParseValue(trimmed)
	if value.Kind == KindUnrepresentable {
		return trimmed
	}
	return value.DisplaySafe()
}

// firstFailureMessage surfaces the most useful diagnostic from a failed
// batch: the first compile error, then the first runtime stderr, then the
// first non-success status.
func firstFailureMessage(verdicts []model.Verdict) string {
	for _, v := range verdicts {
		if v.Status == model.VerdictCompileError && v.CompileOutput != "" {
			return v.CompileOutput
		}
	}
	for _, v := range verdicts {
		if v.Status != model.VerdictSucceeded && strings.TrimSpace(v.Stderr) != "" {
			return strings.TrimSpace(v.Stderr)
		}
	}
	for _, v := range verdicts {
		if v.Status != model.VerdictSucceeded {
			return string(v.Status)
		}
	}
	return ""
}
