package adapter

import (
	"regexp"
	"strings"

	"github.com/suchitj2702/algo-irl/internal/execution/aggregator"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
)

var javascriptForbidden = []forbiddenRule{
	{regexp.MustCompile(`require\s*\(\s*['"]child_process['"]`), "process spawning"},
	{regexp.MustCompile(`require\s*\(\s*['"]fs['"]`), "file access"},
	{regexp.MustCompile(`require\s*\(\s*['"](net|http|https|dgram)['"]`), "network access"},
	{regexp.MustCompile(`\bimport\s*\(`), "dynamic import"},
	{regexp.MustCompile(`\beval\s*\(`), "eval"},
	{regexp.MustCompile(`new\s+Function\s*\(`), "dynamic code construction"},
	{regexp.MustCompile(`process\s*\.\s*(exit|kill|binding)`), "process control"},
}

// JSON.stringify returns undefined for functions and throws on circular
// references. Both degrade to the placeholder so one bad value never masks
// the rest of the batch.
const javascriptHarness = `__USER_CODE__

const _PLACEHOLDER = "__PLACEHOLDER__";

function _encode(value) {
  try {
    const text = JSON.stringify(value);
    return text === undefined ? JSON.stringify(_PLACEHOLDER) : text;
  } catch (err) {
    return JSON.stringify(_PLACEHOLDER);
  }
}

function _runCases() {
  const cases = JSON.parse(Buffer.from("__CASES_B64__", "base64").toString("utf-8"));
  const results = [];
  for (const raw of cases) {
    const started = process.hrtime.bigint();
    try {
      let args = raw.trim() === "" ? [] : JSON.parse(raw);
      if (!Array.isArray(args)) {
        args = [args];
      }
      const value = solution(...args);
      results.push({
        output: JSON.parse(_encode(value)),
        error: null,
        timeMs: Number(process.hrtime.bigint() - started) / 1e6,
      });
    } catch (err) {
      const message = err instanceof Error ? err.message : String(err);
      process.stdout.write("__ERROR_MARKER__" + message + "\n");
      results.push({
        output: null,
        error: message,
        timeMs: Number(process.hrtime.bigint() - started) / 1e6,
      });
    }
  }
  process.stdout.write(JSON.stringify({ results }) + "\n");
}

_runCases();
`

// JavaScriptAdapter runs node programs in the local sandbox.
type JavaScriptAdapter struct {
	profile runProfile
}

func NewJavaScriptAdapter() *JavaScriptAdapter {
	return &JavaScriptAdapter{profile: runProfile{
		language:        "javascript",
		fileName:        "main.js",
		runCommand:      "node {file}",
		judgeLanguageID: 63,
	}}
}

func (a *JavaScriptAdapter) Language() string { return a.profile.language }

func (a *JavaScriptAdapter) Mode() Mode { return ModeLocal }

func (a *JavaScriptAdapter) Validate(code string) error {
	return checkCode(code, javascriptForbidden)
}

func (a *JavaScriptAdapter) BuildHarness(code string, testCases []model.TestCase) (Harness, error) {
	casesB64, err := encodeCaseInputs(testCases)
	if err != nil {
		return Harness{}, err
	}
	source := strings.NewReplacer(
		"__USER_CODE__", code,
		"__CASES_B64__", casesB64,
		"__ERROR_MARKER__", sandbox.ErrorMarker,
		"__PLACEHOLDER__", aggregator.UnrepresentablePlaceholder,
	).Replace(javascriptHarness)

	runCmd, err := a.profile.buildRunCmd()
	if err != nil {
		return Harness{}, err
	}
	return Harness{
		Source:   source,
		FileName: a.profile.fileName,
		RunCmd:   runCmd,
	}, nil
}

var _ Adapter = (*JavaScriptAdapter)(nil)
