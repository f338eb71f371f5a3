package relay

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// ErrMaxRetriesExceeded indicates all retry attempts have been exhausted.
var ErrMaxRetriesExceeded = errors.New("relay: maximum retry attempts exceeded")

// Policy configures bounded retry with exponential backoff. It is
// injected into the relay and independent of the event-consumption
// loop, so retry behavior is testable on its own. A retried run always
// restarts from the same input and prior transcript; a partial
// accumulator is never resumed across attempts, since partial output
// cannot be safely deduplicated against a retried generation.
type Policy struct {
	// MaxRetries is the maximum number of retry attempts after the
	// first run (0 = no retries).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (typically 2.0).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	Jitter float64

	// Retryable determines whether an error should trigger a retry.
	// If nil, default logic is used: transient upstream failures retry,
	// everything else does not.
	Retryable func(error) bool
}

// DefaultPolicy returns sensible retry settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// retryable applies the configured classifier, falling back to the
// default classification.
func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// IsTransient is the default retry classifier: transient upstream
// failures and wire errors of kind upstream_transient retry; context
// cancellation and everything else do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Transient
	}

	var detail *wire.ErrorDetail
	if errors.As(err, &detail) {
		return detail.Kind.Retryable()
	}

	return false
}

// backoff computes the delay before the given retry attempt (1-based)
// with jitter.
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))

	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}

	if p.Jitter > 0 {
		jitterAmount := delay * p.Jitter
		delay += (rand.Float64() * 2 * jitterAmount) - jitterAmount
	}

	return time.Duration(delay)
}

// sleep waits for the backoff delay or until ctx is cancelled.
func (p Policy) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.backoff(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
