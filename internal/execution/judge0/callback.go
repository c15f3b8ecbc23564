package judge0

import "github.com/suchitj2702/algo-irl/internal/execution/model"

// CallbackPayload is the body Judge0 PUTs to the callback URL when one
// delegated job finishes. It carries the same fields as a batch status
// entry for a single token.
type CallbackPayload struct {
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

// ToVerdict decodes the payload into the pipeline's verdict shape.
func (p CallbackPayload) ToVerdict() model.Verdict {
	raw := wireResult{
		Token:         p.Token,
		Stdout:        p.Stdout,
		Stderr:        p.Stderr,
		CompileOutput: p.CompileOutput,
		Time:          p.Time,
		Memory:        p.Memory,
	}
	raw.Status.ID = p.Status.ID
	raw.Status.Description = p.Status.Description
	return raw.toVerdict()
}
