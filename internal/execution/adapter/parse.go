package adapter

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
)

type caseResult struct {
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
	TimeMs float64         `json:"timeMs"`
}

type harnessSummary struct {
	Results []caseResult `json:"results"`
}

// ParseLocalOutput reads a sandbox capture into per-case verdicts. The
// reading order is fixed: the last output line that is a JSON object or
// array is the harness summary; failing that, an error-marker line is the
// failure reason; failing that, a generic parse failure. A malformed capture
// is always data, never a returned error.
func ParseLocalOutput(capture sandbox.Capture, caseCount int) []model.Verdict {
	if caseCount <= 0 {
		return nil
	}

	if capture.TimedOut {
		return uniformVerdicts(capture, caseCount, model.VerdictTimedOut, capture.Error)
	}

	lines, errorLines := sandbox.SplitOutput(capture.Output)

	if summary, ok := lastJSONSummary(lines); ok {
		return summaryVerdicts(summary, capture)
	}

	if len(errorLines) > 0 {
		return uniformVerdicts(capture, caseCount, model.VerdictFailed, errorLines[0])
	}

	if capture.Error != "" {
		status := model.VerdictFailed
		if strings.Contains(capture.Error, "memory limit") {
			status = model.VerdictMemoryExceeded
		}
		return uniformVerdicts(capture, caseCount, status, capture.Error)
	}

	return uniformVerdicts(capture, caseCount, model.VerdictFailed, "could not parse execution results")
}

func lastJSONSummary(lines []string) (harnessSummary, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			continue
		}
		if !json.Valid([]byte(trimmed)) {
			continue
		}
		var summary harnessSummary
		if err := json.Unmarshal([]byte(trimmed), &summary); err != nil || summary.Results == nil {
			continue
		}
		return summary, true
	}
	return harnessSummary{}, false
}

func summaryVerdicts(summary harnessSummary, capture sandbox.Capture) []model.Verdict {
	verdicts := make([]model.Verdict, len(summary.Results))
	for i, result := range summary.Results {
		verdict := model.Verdict{
			TimeMs:   result.TimeMs,
			MemoryKb: capture.Metrics.MemoryUsageKb,
		}
		if result.Error != nil {
			verdict.Status = model.VerdictFailed
			verdict.Stderr = *result.Error
		} else {
			verdict.Status = model.VerdictSucceeded
			verdict.Stdout = renderOutput(result.Output)
		}
		verdicts[i] = verdict
	}
	return verdicts
}

func uniformVerdicts(capture sandbox.Capture, caseCount int, status model.VerdictStatus, stderr string) []model.Verdict {
	perCaseMs := capture.Metrics.ExecutionTimeMs / float64(caseCount)
	verdicts := make([]model.Verdict, caseCount)
	for i := range verdicts {
		verdicts[i] = model.Verdict{
			Status:   status,
			Stderr:   stderr,
			TimeMs:   perCaseMs,
			MemoryKb: capture.Metrics.MemoryUsageKb,
		}
	}
	return verdicts
}

// renderOutput turns one harness-reported value into comparable text. JSON
// strings are unquoted so `"5"` and a bare 5 both compare against an
// expected stdout of "5"; everything else stays compact JSON.
func renderOutput(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
