package sandbox

import "context"

// SlotLimiter bounds the number of concurrent sandbox runs on the host.
type SlotLimiter struct {
	tokens chan struct{}
}

// NewSlotLimiter creates a limiter with a fixed capacity.
func NewSlotLimiter(size int) *SlotLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &SlotLimiter{tokens: tokens}
}

// Acquire blocks until a slot is available or ctx is canceled.
func (l *SlotLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// Release returns a slot to the limiter.
func (l *SlotLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}
