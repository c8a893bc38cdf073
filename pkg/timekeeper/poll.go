package timekeeper

import (
	"context"
	"time"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
)

// MinInterval is the wait used when a Policy leaves Interval unset.
const MinInterval = 50 * time.Millisecond

// Policy is a fixed interval retry policy bounded by a deadline and,
// optionally, an attempt count.
type Policy struct {
	Timeout     time.Duration
	Interval    time.Duration
	MaxAttempts int
}

// Check reports whether the poll is finished. A nil error with done=false
// means "not found yet".
type Check[T any] func(ctx context.Context) (value T, done bool, err error)

// Poll runs check until it reports done, returns an error, ctx is done or
// the policy is exhausted. Exhaustion yields an *aaerr.TimeoutError.
func Poll[T any](ctx context.Context, p Policy, operation string, check Check[T]) (T, error) {
	var zero T
	clock := NewElapsing()
	attempts := 0
	interval := p.Interval
	if interval <= 0 {
		interval = MinInterval
	}

	for clock.Total() < p.Timeout {
		attempts++
		v, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		clock.Report()
	}

	return zero, aaerr.NewTimeoutError(operation, p.Timeout, attempts)
}
