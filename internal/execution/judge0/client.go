// Package judge0 is the client for a Judge0-compatible judging service. It
// covers the two calls the pipeline needs: batch submission and batched
// status retrieval, both order-preserving.
package judge0

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

// Config holds the connection settings for a Judge0 CE instance.
// AuthToken is optional; sent as X-Auth-Token when configured.
type Config struct {
	URL       string        `yaml:"url" json:"url"`
	AuthToken string        `yaml:"auth_token" json:"auth_token,omitempty"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// Entry is one unit of delegated execution: the full program plus one test
// case's input/expected pair and its effective limits.
type Entry struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string

	// CPUTimeLimitSec is the per-case CPU budget in seconds.
	CPUTimeLimitSec float64

	// MemoryLimitKb is the per-case memory ceiling in kilobytes.
	MemoryLimitKb int64

	// CallbackURL, when set, makes the judge push the finished verdict.
	CallbackURL string
}

// Client calls the Judge0 REST API.
type Client struct {
	url       string
	authToken string
	client    *http.Client
}

// NewClient constructs a Client from the given config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:       strings.TrimRight(cfg.URL, "/"),
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type batchSubmitRequest struct {
	Submissions []wireSubmission `json:"submissions"`
}

type wireSubmission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	WallTimeLimit  float64 `json:"wall_time_limit,omitempty"`
	MemoryLimit    int64   `json:"memory_limit,omitempty"`
	CallbackURL    string  `json:"callback_url,omitempty"`
}

// SubmitBatch submits all entries in one call and returns one token per
// entry, in entry order. Communication failures come back as
// ExternalServiceError so callers know to retry rather than fail the
// submission.
func (c *Client) SubmitBatch(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, errors.New(errors.InvalidParams).WithMessage("batch submit requires at least one entry")
	}

	reqBody := batchSubmitRequest{Submissions: make([]wireSubmission, len(entries))}
	for i, entry := range entries {
		wire := wireSubmission{
			SourceCode:   base64.StdEncoding.EncodeToString([]byte(entry.SourceCode)),
			LanguageID:   entry.LanguageID,
			CPUTimeLimit: entry.CPUTimeLimitSec,
			MemoryLimit:  entry.MemoryLimitKb,
			CallbackURL:  entry.CallbackURL,
		}
		if entry.CPUTimeLimitSec > 0 {
			// Judge0 requires wall >= cpu; give startup a little headroom.
			wire.WallTimeLimit = entry.CPUTimeLimitSec + 2
		}
		if entry.Stdin != "" {
			wire.Stdin = base64.StdEncoding.EncodeToString([]byte(entry.Stdin))
		}
		if entry.ExpectedOutput != "" {
			wire.ExpectedOutput = base64.StdEncoding.EncodeToString([]byte(entry.ExpectedOutput))
		}
		reqBody.Submissions[i] = wire
	}

	var tokens []struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", reqBody, &tokens); err != nil {
		return nil, err
	}

	handles := make([]string, len(tokens))
	for i, tok := range tokens {
		handles[i] = tok.Token
	}
	return handles, nil
}

type wireResult struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Time          *string `json:"time"`
	Memory        *int64  `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

type batchStatusResponse struct {
	Submissions []wireResult `json:"submissions"`
}

// GetBatchStatus fetches every token's verdict in one round-trip. The
// returned verdicts preserve token order.
func (c *Client) GetBatchStatus(ctx context.Context, tokens []string) ([]model.Verdict, error) {
	if len(tokens) == 0 {
		return nil, errors.New(errors.InvalidParams).WithMessage("batch status requires at least one token")
	}

	path := "/submissions/batch?base64_encoded=true&tokens=" + strings.Join(tokens, ",") +
		"&fields=token,stdout,stderr,compile_output,time,memory,status"
	var resp batchStatusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	verdicts := make([]model.Verdict, len(resp.Submissions))
	for i, raw := range resp.Submissions {
		verdicts[i] = raw.toVerdict()
	}
	return verdicts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.SerializationFailed)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return errors.ExternalError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.ExternalError(fmt.Errorf("call judging service: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.ExternalError(fmt.Errorf("judging service returned HTTP %d", resp.StatusCode)).
			WithDetail("status_code", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ExternalError(fmt.Errorf("decode judging service response: %w", err))
	}
	return nil
}

func (r wireResult) toVerdict() model.Verdict {
	verdict := model.Verdict{
		Status:        statusFromID(r.Status.ID),
		Stdout:        decodeBase64(r.Stdout),
		Stderr:        decodeBase64(r.Stderr),
		CompileOutput: decodeBase64(r.CompileOutput),
	}
	if r.Time != nil {
		if seconds, err := strconv.ParseFloat(*r.Time, 64); err == nil {
			verdict.TimeMs = seconds * 1000
		}
	}
	if r.Memory != nil {
		verdict.MemoryKb = *r.Memory
	}
	return verdict
}

// statusFromID maps Judge0 status ids onto the pipeline's verdict statuses.
func statusFromID(id int) model.VerdictStatus {
	switch id {
	case 1:
		return model.VerdictQueued
	case 2:
		return model.VerdictRunning
	case 3:
		return model.VerdictSucceeded
	case 4:
		// Wrong answer: the run itself finished, scoring happens in the
		// aggregator against expected output.
		return model.VerdictSucceeded
	case 5:
		return model.VerdictTimedOut
	case 6:
		return model.VerdictCompileError
	case 7, 8, 9, 10, 11, 12:
		return model.VerdictFailed
	default:
		return model.VerdictInternalError
	}
}

func decodeBase64(field *string) string {
	if field == nil {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*field))
	if err != nil {
		return *field
	}
	return string(decoded)
}
