package adapter

import (
	"regexp"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
)

// delegatedAdapter covers compiled languages without a trusted in-process
// interpreter. The external judge compiles the source, feeds each test case
// on stdin and compares against expected stdout, so no case data is embedded
// in the harness.
type delegatedAdapter struct {
	profile   runProfile
	forbidden []forbiddenRule
}

func (a *delegatedAdapter) Language() string { return a.profile.language }

func (a *delegatedAdapter) Mode() Mode { return ModeDelegated }

func (a *delegatedAdapter) Validate(code string) error {
	return checkCode(code, a.forbidden)
}

func (a *delegatedAdapter) BuildHarness(code string, _ []model.TestCase) (Harness, error) {
	return Harness{
		Source:          code,
		FileName:        a.profile.fileName,
		JudgeLanguageID: a.profile.judgeLanguageID,
	}, nil
}

var cppForbidden = []forbiddenRule{
	{regexp.MustCompile(`\bsystem\s*\(`), "shell invocation"},
	{regexp.MustCompile(`\b(popen|fork|execve?|execl[pe]?)\s*\(`), "process spawning"},
	{regexp.MustCompile(`#\s*include\s*<sys/socket\.h>`), "raw socket access"},
	{regexp.MustCompile(`\basm\b|__asm__`), "inline assembly"},
}

func NewCppAdapter() Adapter {
	return &delegatedAdapter{
		profile: runProfile{
			language:        "cpp",
			fileName:        "main.cpp",
			judgeLanguageID: 54,
		},
		forbidden: cppForbidden,
	}
}

var javaForbidden = []forbiddenRule{
	{regexp.MustCompile(`Runtime\s*\.\s*getRuntime\s*\(`), "runtime exec"},
	{regexp.MustCompile(`\bProcessBuilder\b`), "process spawning"},
	{regexp.MustCompile(`\bjava\.net\b`), "network access"},
	{regexp.MustCompile(`\bjava\.lang\.reflect\b`), "reflection"},
}

func NewJavaAdapter() Adapter {
	return &delegatedAdapter{
		profile: runProfile{
			language:        "java",
			fileName:        "Main.java",
			judgeLanguageID: 62,
		},
		forbidden: javaForbidden,
	}
}
