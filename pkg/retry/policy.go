package retry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

// ErrMaxRetriesExceeded wraps the last error once the policy is exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls how often and how fast an operation is retried
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	RetryableFunc func(error) bool
}

// DefaultPolicy suits short outbound HTTP calls
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

// Validate checks the policy bounds
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0, 1]")
	}
	return nil
}

// Backoff computes exponential delays with jitter
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff for the policy
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before the given attempt (1-based)
func (b *Backoff) Calculate(attempt int) time.Duration {
	delay := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if max := float64(b.policy.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	if b.policy.Jitter > 0 {
		delay += delay * b.policy.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsRetryable is the default classification: errors flagged retryable by
// the domain error taxonomy
func IsRetryable(err error) bool {
	return domainerrors.IsRetryable(err)
}
