package fanout

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig shapes the reconnection schedule.
type BackoffConfig struct {
	Base             time.Duration
	ExponentCap      int
	MaxAttempts      int
	ExtendedInterval time.Duration
}

// DefaultBackoffConfig waits 1s, 2s, 4s ... 32s, and after ten attempts
// retries every minute for as long as listeners remain.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:             time.Second,
		ExponentCap:      5,
		MaxAttempts:      10,
		ExtendedInterval: time.Minute,
	}
}

// Delay returns the wait before reconnection attempt n (1-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if c.MaxAttempts > 0 && attempt > c.MaxAttempts {
		return c.ExtendedInterval
	}
	exp := attempt - 1
	if exp > c.ExponentCap {
		exp = c.ExponentCap
	}
	return c.Base * time.Duration(1<<uint(exp))
}

// reconnectBackOff adapts BackoffConfig to backoff.BackOff. It never
// returns backoff.Stop; retries end only when the context is canceled.
type reconnectBackOff struct {
	cfg     BackoffConfig
	attempt int
}

var _ backoff.BackOff = (*reconnectBackOff)(nil)

func newReconnectBackOff(cfg BackoffConfig) *reconnectBackOff {
	return &reconnectBackOff{cfg: cfg}
}

func (b *reconnectBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.cfg.Delay(b.attempt)
}

func (b *reconnectBackOff) Reset() {
	b.attempt = 0
}
