package reconciler

import (
	"context"
	"time"

	"github.com/suchitj2702/algo-irl/pkg/errors"
)

// Policy is a time-bounded retry schedule: keep trying at Interval until
// MaxWait elapses. Bounding by duration instead of attempt count lets the
// schedule compose with the caller's own context deadline.
type Policy struct {
	MaxWait  time.Duration
	Interval time.Duration
}

// DefaultPolicy suits interactive status polling.
func DefaultPolicy() Policy {
	return Policy{MaxWait: 60 * time.Second, Interval: 2 * time.Second}
}

// Run invokes fn until it reports done, the context is cancelled, or MaxWait
// elapses. The last error from fn is carried inside the deadline error so
// callers can see why the wait never finished.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) (done bool, err error)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	maxWait := p.MaxWait
	if maxWait <= 0 {
		maxWait = time.Minute
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		done, err := fn(ctx)
		if done {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.Timeout)
		case <-deadline.C:
			if lastErr != nil {
				return errors.Wrapf(lastErr, errors.PollDeadlineExceeded,
					"gave up after %s: %s", maxWait, lastErr.Error())
			}
			return errors.Newf(errors.PollDeadlineExceeded, "gave up after %s", maxWait)
		case <-ticker.C:
		}
	}
}
