// Package retry bounds retries of external calls under a shared policy so
// every upstream dependency (LLM, geocoding, mail) degrades the same way.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retries of an external call: MaxAttempts total attempts
// starting from BaseDelay and doubling, retrying only errors Retryable
// accepts. Final-attempt and non-retryable errors propagate unchanged.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
}

// Default is the platform-wide budget for external calls: 3 attempts,
// 1s base delay, doubling, transient errors only.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs op under the policy.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}

// transientMarkers are substrings that identify errors worth retrying.
// Upstream SDKs surface throttling and overload conditions as message text
// rather than typed errors, so classification is by inspection.
var transientMarkers = []string{
	"timeout",
	"deadline exceeded",
	"429",
	"503",
	"too many requests",
	"service unavailable",
	"unavailable",
	"overloaded",
	"rate limit",
	"connection reset",
	"temporarily",
}

// IsTransient reports whether an error looks like a transient upstream
// condition (timeout, throttling, overload) rather than a terminal one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
