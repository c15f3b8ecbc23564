//go:build !linux

package sandbox

import (
	"context"
	"fmt"
)

// FastConfig configures the fast tier.
type FastConfig struct {
	WorkRoot string
}

// StrictConfig configures the strict tier.
type StrictConfig struct {
	HelperPath       string
	SeccompProfile   string
	WorkRoot         string
	EnableNamespaces bool
}

// FastSandbox is only supported on linux.
type FastSandbox struct{}

func NewFastSandbox(cfg FastConfig) *FastSandbox {
	return &FastSandbox{}
}

func (s *FastSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	return Capture{}, fmt.Errorf("sandbox is only supported on linux")
}

// StrictSandbox is only supported on linux.
type StrictSandbox struct{}

func NewStrictSandbox(cfg StrictConfig) *StrictSandbox {
	return &StrictSandbox{}
}

func (s *StrictSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	return Capture{}, fmt.Errorf("sandbox is only supported on linux")
}
