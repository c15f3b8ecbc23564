package adapter

import (
	"regexp"
	"strings"

	"github.com/google/shlex"

	"github.com/suchitj2702/algo-irl/pkg/errors"
)

// maxCodeBytes bounds the raw submitted source before any harness is added.
const maxCodeBytes = 256 << 10

// runProfile describes how a local language is started. The run command is a
// shell-style string with a {file} placeholder, split with shlex so quoting
// in profiles behaves the way operators expect.
type runProfile struct {
	language        string
	fileName        string
	runCommand      string
	judgeLanguageID int
}

func (p runProfile) buildRunCmd() ([]string, error) {
	argv, err := shlex.Split(strings.ReplaceAll(p.runCommand, "{file}", p.fileName))
	if err != nil {
		return nil, errors.Wrapf(err, errors.HarnessBuildFailed, "parse run command for %s", p.language)
	}
	if len(argv) == 0 {
		return nil, errors.Newf(errors.HarnessBuildFailed, "empty run command for %s", p.language)
	}
	return argv, nil
}

// forbiddenRule is one static safety pattern rejected before execution.
type forbiddenRule struct {
	pattern *regexp.Regexp
	reason  string
}

func checkCode(code string, rules []forbiddenRule) error {
	if strings.TrimSpace(code) == "" {
		return errors.New(errors.RequiredFieldEmpty).WithDetail("field", "code")
	}
	if len(code) > maxCodeBytes {
		return errors.Newf(errors.CodeTooLarge, "code exceeds %d bytes", maxCodeBytes).
			WithDetail("size", len(code))
	}
	for _, rule := range rules {
		if loc := rule.pattern.FindString(code); loc != "" {
			return errors.New(errors.ValidationFailed).
				WithMessagef("forbidden construct: %s", rule.reason).
				WithDetail("pattern", loc)
		}
	}
	return nil
}
