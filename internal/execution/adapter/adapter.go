// Package adapter holds the per-language execution adapters: static
// validation of submitted source, harness assembly, and the routing policy
// that decides whether a language runs in the local sandbox or is delegated
// to the external judging service.
package adapter

import (
	"strings"

	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/pkg/errors"
)

// Mode is the static routing policy of a language. It is a property of the
// adapter, never a per-request decision.
type Mode string

const (
	// ModeLocal runs the assembled harness in the local sandbox.
	ModeLocal Mode = "local"

	// ModeDelegated submits the program to the external judging service.
	ModeDelegated Mode = "delegated"
)

// Harness is one self-contained program assembled from the user's code.
// For local languages it embeds every test case and prints a single JSON
// summary as its last meaningful output line. For delegated languages the
// judge feeds each test case on stdin, so the source carries no case data.
type Harness struct {
	Source   string
	FileName string

	// RunCmd is the argv used to start the program locally. Empty for
	// delegated languages.
	RunCmd []string

	// JudgeLanguageID identifies the language on the external judging
	// service. Zero for local languages.
	JudgeLanguageID int
}

// Adapter is implemented once per supported language.
type Adapter interface {
	// Language returns the canonical lowercase language name.
	Language() string

	// Mode returns the static routing policy for this language.
	Mode() Mode

	// Validate rejects forbidden constructs before any execution is
	// attempted. Returns a ValidationFailed error with the offending
	// pattern in its details.
	Validate(code string) error

	// BuildHarness assembles the runnable program for this language.
	BuildHarness(code string, testCases []model.TestCase) (Harness, error)
}

// Registry resolves adapters by language name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Language names are
// matched case-insensitively.
func NewRegistry(adapters ...Adapter) *Registry {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[strings.ToLower(a.Language())] = a
	}
	return &Registry{adapters: byName}
}

// DefaultRegistry returns the registry with every built-in language adapter.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPythonAdapter(),
		NewJavaScriptAdapter(),
		NewCppAdapter(),
		NewJavaAdapter(),
	)
}

// Get returns the adapter for the language, or a LanguageNotSupported error.
func (r *Registry) Get(language string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return nil, errors.Newf(errors.LanguageNotSupported, "language %q is not supported", language).
			WithDetail("language", language)
	}
	return a, nil
}

// Languages lists every registered language name.
func (r *Registry) Languages() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
