package clients

import (
	"context"
	"time"
)

// Logger interface for retry logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Policy controls timeout and retry behavior for outbound calls.
// Callers inject a Policy instead of hard-coding delays so tests can
// run with MaxAttempts=1 and zero backoff.
type Policy struct {
	MaxAttempts int           // total attempts including the first; values < 1 mean 1
	BaseDelay   time.Duration // delay before the second attempt, doubles each retry
	MaxDelay    time.Duration // backoff cap (0 = uncapped)
	Timeout     time.Duration // per-attempt deadline (0 = none)
}

// DefaultPolicy returns the policy used when no override is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Retrier executes operations under a Policy
type Retrier struct {
	policy Policy
	logger Logger
}

// NewRetrier creates a retrier with the given policy
func NewRetrier(policy Policy, logger Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, logger: logger}
}

// Policy returns the policy the retrier was built with
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn until it succeeds, attempts are exhausted, or the context is
// cancelled. Each attempt gets its own deadline when the policy sets one.
// The last error is returned after the final attempt.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	backoff := r.policy.BaseDelay

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.logger.Debug("retrying operation", "op", op, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if r.policy.MaxDelay > 0 && backoff > r.policy.MaxDelay {
				backoff = r.policy.MaxDelay
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}

		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		r.logger.Warn("operation attempt failed", "op", op, "attempt", attempt, "error", err)
	}

	return lastErr
}
