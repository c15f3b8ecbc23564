package sandbox

import (
	"context"

	"github.com/suchitj2702/algo-irl/pkg/utils/logger"

	"go.uber.org/zap"
)

// TieredSandbox runs programs through the fast tier first and falls back to
// the strict tier only when the fast tier's infrastructure fails to execute
// the program at all. A user-program failure captured by the fast tier is a
// normal outcome and never triggers the fallback.
type TieredSandbox struct {
	fast    Sandbox
	strict  Sandbox
	limiter *SlotLimiter
}

// TieredConfig configures the tiered sandbox.
type TieredConfig struct {
	// MaxConcurrentRuns bounds simultaneous runs across both tiers.
	// Default: 4.
	MaxConcurrentRuns int
}

// NewTieredSandbox creates the two-step fallback strategy over the given
// tiers.
func NewTieredSandbox(fast, strict Sandbox, cfg TieredConfig) *TieredSandbox {
	size := cfg.MaxConcurrentRuns
	if size <= 0 {
		size = 4
	}
	return &TieredSandbox{
		fast:    fast,
		strict:  strict,
		limiter: NewSlotLimiter(size),
	}
}

// Run executes the program, preferring the fast tier.
func (t *TieredSandbox) Run(ctx context.Context, program Program, limits Limits) (Capture, error) {
	if err := t.limiter.Acquire(ctx); err != nil {
		return Capture{}, err
	}
	defer t.limiter.Release()

	capture, err := t.fast.Run(ctx, program, limits)
	if err == nil {
		return capture, nil
	}
	if ctx.Err() != nil {
		return Capture{}, err
	}

	logger.Warn(ctx, "fast tier failed, falling back to strict tier",
		zap.String("file", program.FileName),
		zap.Error(err),
	)
	return t.strict.Run(ctx, program, limits)
}

var _ Sandbox = (*TieredSandbox)(nil)
