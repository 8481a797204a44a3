// Package retry classifies operation failures as transient or fatal and
// computes exponential backoff delays between attempts.
//
// The policy itself is stateless and reentrant; attempt state lives on the
// caller's stack inside Do, never on the Policy.
package retry

import (
	"context"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/aws/smithy-go"

	stderrors "errors"

	"github.com/bestend/s3lync/errors"
)

// maxDelay caps a single backoff sleep regardless of attempt count.
const maxDelay = 30 * time.Second

// Policy holds retry configuration. The zero value is not usable; build
// one with New so defaults are applied.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	multiplier  float64
	logger      *slog.Logger
}

// New creates a Policy. Zero or negative arguments fall back to the
// defaults (3 attempts, 500ms base delay, doubling).
func New(maxAttempts int, baseDelay time.Duration, multiplier float64, logger *slog.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		multiplier:  multiplier,
		logger:      logger,
	}
}

// MaxAttempts returns the attempt ceiling.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// IsRetryable determines if the given error should be retried.
// It checks for AWS error codes that indicate transient failures.
func (p *Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation and deadline expiry belong to the caller, not
	// to the remote side
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Check for smithy API errors (AWS SDK v2 error type)
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException",
			"Throttling",
			"TooManyRequestsException",
			"RequestLimitExceeded",
			"ProvisionedThroughputExceededException",
			"SlowDown",
			"ServiceUnavailable",
			"InternalError",
			"RequestTimeout":
			return true
		}
		return false
	}

	// Sentinel throttle/timeout errors raised by our own layers
	if stderrors.Is(err, errors.ErrTooManyRequests) || stderrors.Is(err, errors.ErrTimeout) {
		return true
	}

	// Network-level timeouts are transient
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Conservative default: unknown errors are fatal, which prevents
	// retry loops on permanent failures
	return false
}

// NextDelay returns the backoff delay before the given retry.
// attempt starts at 0 for the first retry: baseDelay * multiplier^attempt,
// capped at maxDelay.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

// Do runs op up to MaxAttempts times, sleeping NextDelay between attempts.
// Only retryable errors trigger another attempt; a fatal error and the
// final exhausted error are both returned unchanged. Backoff sleeps abort
// when ctx is cancelled, and no further attempt starts after cancellation.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.NextDelay(attempt - 1)
			p.logger.Warn("retrying after transient failure",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.IsRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}
