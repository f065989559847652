package session

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectPolicy produces the delay sequence between reconnect attempts.
// The n-th delay is min(base*multiplier^n, maxDelay), so delays grow from the
// first retry on and are non-decreasing.
type reconnectPolicy struct {
	policy *backoff.ExponentialBackOff
}

func newReconnectPolicy(base time.Duration, multiplier float64, maxDelay time.Duration) *reconnectPolicy {
	initial := time.Duration(float64(base) * multiplier)
	if initial > maxDelay {
		initial = maxDelay
	}
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxDelay,
	}
	policy.Reset()
	return &reconnectPolicy{policy: policy}
}

// next returns the delay before the upcoming attempt.
func (p *reconnectPolicy) next() time.Duration {
	return p.policy.NextBackOff()
}

// reset rewinds the schedule after a successful connection or a manual
// Connect.
func (p *reconnectPolicy) reset() {
	p.policy.Reset()
}
