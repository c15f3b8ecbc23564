package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	httpclient "github.com/suchitj2702/algo-irl/internal/cli/http"
	pkgerrors "github.com/suchitj2702/algo-irl/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	defaultWatchInterval = 2 * time.Second
	defaultWatchWindow   = 2 * time.Minute
)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	prettyJSON bool
	rl         *readline.Instance
}

func New(client *httpclient.Client, prettyJSON bool) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "algo-irl> ",
		HistoryFile:     os.TempDir() + "/algo-irl-cli.history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("run"),
			readline.PcItem("status"),
			readline.PcItem("watch"),
			readline.PcItem("set",
				readline.PcItem("base"),
				readline.PcItem("timeout"),
			),
			readline.PcItem("show", readline.PcItem("config")),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return &Session{client: client, prettyJSON: prettyJSON, rl: rl}, nil
}

func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			s.printLine("bye")
			return
		}
		if err != nil {
			s.printLine("read input failed: %v", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		os.Exit(0)
	case "help":
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.printLine("usage: set base|timeout <value>")
		return
	}
	switch parts[0] {
	case "base":
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("baseURL: %s", s.client.BaseURL())
	default:
		s.printLine("usage: show config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	switch tokens[0] {
	case "run":
		return s.runCommand(ctx, tokens[1:])
	case "status":
		if len(tokens) < 2 {
			return fmt.Errorf("usage: status <submission_id>")
		}
		return s.statusCommand(ctx, tokens[1])
	case "watch":
		if len(tokens) < 2 {
			return fmt.Errorf("usage: watch <submission_id>")
		}
		return s.watchCommand(ctx, tokens[1])
	default:
		return fmt.Errorf("unknown command: %s", tokens[0])
	}
}

type testCaseInput struct {
	Stdin          string `json:"stdin"`
	ExpectedStdout string `json:"expected_stdout"`
	IsSample       bool   `json:"is_sample,omitempty"`
	TimeLimitMs    int64  `json:"time_limit_ms,omitempty"`
	MemoryLimitMb  int64  `json:"memory_limit_mb,omitempty"`
}

type executePayload struct {
	Code           string          `json:"code"`
	Language       string          `json:"language"`
	TestCases      []testCaseInput `json:"test_cases"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// runCommand submits an execution. The code always comes from a file; test
// cases from a JSON file or a single inline stdin/expected pair.
func (s *Session) runCommand(ctx context.Context, args []string) error {
	params := map[string]string{}
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", arg)
		}
		params[strings.ToLower(parts[0])] = parts[1]
	}

	language := params["language"]
	if language == "" {
		return fmt.Errorf("language is required")
	}
	codeFile := params["code_file"]
	if codeFile == "" {
		return fmt.Errorf("code_file is required")
	}
	code, err := os.ReadFile(codeFile)
	if err != nil {
		return fmt.Errorf("read code file failed: %w", err)
	}

	var cases []testCaseInput
	switch {
	case params["cases_file"] != "":
		data, err := os.ReadFile(params["cases_file"])
		if err != nil {
			return fmt.Errorf("read cases file failed: %w", err)
		}
		if err := json.Unmarshal(data, &cases); err != nil {
			return fmt.Errorf("parse cases file failed: %w", err)
		}
	case params["stdin"] != "":
		cases = []testCaseInput{{
			Stdin:          params["stdin"],
			ExpectedStdout: params["expected"],
		}}
	default:
		return fmt.Errorf("cases_file or stdin is required")
	}

	body, err := json.Marshal(executePayload{
		Code:           string(code),
		Language:       language,
		TestCases:      cases,
		IdempotencyKey: params["key"],
	})
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	resp, err := s.client.Do(ctx, http.MethodPost, "/api/v1/executions", nil, body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) statusCommand(ctx context.Context, submissionID string) error {
	resp, err := s.client.Do(ctx, http.MethodGet, "/api/v1/executions/"+submissionID, nil, nil)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

// watchCommand polls the status endpoint until the submission is terminal or
// the watch window closes.
func (s *Session) watchCommand(ctx context.Context, submissionID string) error {
	deadline := time.Now().Add(defaultWatchWindow)
	for {
		resp, err := s.client.Do(ctx, http.MethodGet, "/api/v1/executions/"+submissionID, nil, nil)
		if err != nil {
			return err
		}
		s.renderResponse(resp)

		status, ok := parseStatus(resp.Body)
		if ok && (status == "completed" || status == "error") {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("watch window closed before completion")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(defaultWatchInterval):
		}
	}
}

func parseStatus(body []byte) (string, bool) {
	var envelope struct {
		Code int `json:"code"`
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	if envelope.Code != int(pkgerrors.Success) {
		return "", false
	}
	return envelope.Data.Status, envelope.Data.Status != ""
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	s.printLine("  run language=python code_file=./solution.py cases_file=./cases.json [key=<idempotency>]")
	s.printLine("  run language=python code_file=./solution.py stdin='[2,3]' expected=5")
	s.printLine("  status <submission_id>")
	s.printLine("  watch <submission_id>")
	s.printLine("system: help | exit | set base|timeout <value> | show config")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.rl.Stdout(), format+"\n", args...)
}
