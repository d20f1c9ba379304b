package domain

import (
	"time"

	"event-dispatcher/pkg/apperror"
)

// BackoffStrategy controls how the delay grows between retries.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// MaxRetryDelay caps every computed retry delay.
const MaxRetryDelay = 24 * time.Hour

// RetryPolicy describes retries after the initial attempt. MaxAttempts counts
// retries only, so a chain makes at most MaxAttempts+1 transport calls.
type RetryPolicy struct {
	MaxAttempts int             `json:"max_attempts"`
	Backoff     BackoffStrategy `json:"backoff"`
	BaseDelay   time.Duration   `json:"base_delay"`
}

func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return apperror.Validation("retry max attempts must not be negative")
	}
	if p.BaseDelay < 0 {
		return apperror.Validation("retry base delay must not be negative")
	}
	switch p.Backoff {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		return nil
	default:
		return apperror.Validation("unknown backoff strategy " + string(p.Backoff))
	}
}

// Delay returns the wait before retry n (1-based).
//
//	fixed:       base
//	linear:      base * n
//	exponential: base * 2^(n-1)
func (p *RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}

	var d time.Duration
	switch p.Backoff {
	case BackoffLinear:
		if time.Duration(n) > MaxRetryDelay/base {
			return MaxRetryDelay
		}
		d = base * time.Duration(n)
	case BackoffExponential:
		shift := n - 1
		if shift >= 62 || base > MaxRetryDelay>>uint(shift) {
			return MaxRetryDelay
		}
		d = base << uint(shift)
	default:
		d = base
	}

	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

// HasAttemptsLeft reports whether a retry may follow the given attempt
// (0 is the initial call).
func (p *RetryPolicy) HasAttemptsLeft(attempt int) bool {
	return p != nil && attempt < p.MaxAttempts
}

// RateLimitPolicy admits at most Max deliveries per fixed Window.
type RateLimitPolicy struct {
	Max    int64         `json:"max"`
	Window time.Duration `json:"window"`
}

func (p *RateLimitPolicy) Validate() error {
	if p.Max <= 0 {
		return apperror.Validation("rate limit max must be positive")
	}
	if p.Window < time.Millisecond {
		return apperror.Validation("rate limit window must be at least 1ms")
	}
	return nil
}
