package adapter

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/suchitj2702/algo-irl/internal/execution/aggregator"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/sandbox"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

var pythonForbidden = []forbiddenRule{
	{regexp.MustCompile(`(?m)^\s*(import|from)\s+os\b`), "os module access"},
	{regexp.MustCompile(`(?m)^\s*(import|from)\s+subprocess\b`), "subprocess spawning"},
	{regexp.MustCompile(`(?m)^\s*(import|from)\s+socket\b`), "raw socket access"},
	{regexp.MustCompile(`(?m)^\s*(import|from)\s+shutil\b`), "filesystem manipulation"},
	{regexp.MustCompile(`(?m)^\s*(import|from)\s+ctypes\b`), "native code loading"},
	{regexp.MustCompile(`__import__\s*\(`), "dynamic import"},
	{regexp.MustCompile(`\beval\s*\(`), "eval"},
	{regexp.MustCompile(`\bexec\s*\(`), "exec"},
	{regexp.MustCompile(`\bopen\s*\(`), "file access"},
}

// pythonHarness drives every test case in one process: decode the embedded
// case inputs, call solution(*args) per case, and print one JSON summary as
// the final line. Failures inside a case are printed on the error-marker
// channel and recorded in the summary instead of aborting the run.
const pythonHarness = `import base64 as _b64
import json as _json
import sys as _sys
import time as _time

__USER_CODE__

_PLACEHOLDER = "__PLACEHOLDER__"


def _encode(value):
    try:
        return _json.dumps(value, separators=(",", ":"))
    except (TypeError, ValueError):
        return _json.dumps(_PLACEHOLDER)


def _run_cases():
    cases = _json.loads(_b64.b64decode("__CASES_B64__").decode("utf-8"))
    results = []
    for raw in cases:
        started = _time.perf_counter()
        try:
            args = _json.loads(raw) if raw.strip() else []
            if not isinstance(args, list):
                args = [args]
            value = solution(*args)
            results.append({
                "output": _json.loads(_encode(value)),
                "error": None,
                "timeMs": (_time.perf_counter() - started) * 1000,
            })
        except Exception as exc:
            message = str(exc) or type(exc).__name__
            _sys.stdout.write("__ERROR_MARKER__" + message + "\n")
            results.append({
                "output": None,
                "error": message,
                "timeMs": (_time.perf_counter() - started) * 1000,
            })
    _sys.stdout.write(_json.dumps({"results": results}, separators=(",", ":")) + "\n")


_run_cases()
`

// PythonAdapter runs python programs in the local sandbox.
type PythonAdapter struct {
	profile runProfile
}

func NewPythonAdapter() *PythonAdapter {
	return &PythonAdapter{profile: runProfile{
		language:        "python",
		fileName:        "main.py",
		runCommand:      "python3 {file}",
		judgeLanguageID: 71,
	}}
}

func (a *PythonAdapter) Language() string { return a.profile.language }

func (a *PythonAdapter) Mode() Mode { return ModeLocal }

func (a *PythonAdapter) Validate(code string) error {
	return checkCode(code, pythonForbidden)
}

func (a *PythonAdapter) BuildHarness(code string, testCases []model.TestCase) (Harness, error) {
	casesB64, err := encodeCaseInputs(testCases)
	if err != nil {
		return Harness{}, err
	}
	source := strings.NewReplacer(
		"__USER_CODE__", code,
		"__CASES_B64__", casesB64,
		"__ERROR_MARKER__", sandbox.ErrorMarker,
		"__PLACEHOLDER__", aggregator.UnrepresentablePlaceholder,
	).Replace(pythonHarness)

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

// encodeCaseInputs packs every test case stdin into one base64 JSON blob so
// arbitrary user input can be embedded in harness source without escaping.
func encodeCaseInputs(testCases []model.TestCase) (string, error) {
	inputs := make([]string, len(testCases))
	for i, tc := range testCases {
		inputs[i] = tc.Stdin
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", errors.Wrap(err, errors.SerializationFailed)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

var _ Adapter = (*PythonAdapter)(nil)
