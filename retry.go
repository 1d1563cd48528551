/*
Package dynatable – retry policy.
*/
package dynatable

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls backoff for unprocessed batch remainders and
// retryable transport failures.
type RetryPolicy struct {
	// MaxAttempts is the total attempt ceiling, including the first call.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier grows the delay per attempt. Values below 1 are treated as 2.
	Multiplier float64

	// Jitter is the fraction [0,1] of the computed delay randomized away.
	// 1 means full jitter (uniform over (0, delay]), 0 disables jitter.
	Jitter float64
}

// DefaultRetryPolicy is used when a caller passes a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   25 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Multiplier:  2,
	Jitter:      1,
}

func (p RetryPolicy) orDefault() RetryPolicy {
	if p.MaxAttempts <= 0 {
		return DefaultRetryPolicy
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// Delay returns the backoff before retry number attempt (1-based).
// The delay grows geometrically, is capped at MaxDelay, and is then
// uniformly jittered.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		d = d*(1-p.Jitter) + rand.Float64()*d*p.Jitter
	}
	return time.Duration(d)
}

// wait sleeps for the attempt's backoff delay, returning early with the
// context error when ctx is cancelled.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
