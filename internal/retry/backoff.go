package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// BackoffFunc returns the delay before retry number attempt (0-based)
type BackoffFunc func(attempt int) time.Duration

// Policy is the attempt budget and backoff of a retried operation
type Policy struct {
	MaxRetries int         // retries after the first attempt
	Backoff    BackoffFunc // delay between attempts; nil means no delay
	Name       string      // operation name used in logs
	Retryable  func(error) bool
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// Fixed waits the same delay before every retry
func Fixed(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Exponential grows the delay by multiplier per attempt, capped at max, with up to
// 10% random jitter when jitter is set
func Exponential(base, max time.Duration, multiplier float64, jitter bool) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := float64(base) * math.Pow(multiplier, float64(attempt))
		if delay > float64(max) {
			delay = float64(max)
		}
		if jitter {
			jitterRange := delay * 0.1
			delay += (rand.Float64() - 0.5) * 2 * jitterRange
			if delay < 0 {
				delay = float64(base)
			}
		}
		return time.Duration(delay)
	}
}

// EmbeddingPolicy retries a single embedding request twice with a fixed backoff
func EmbeddingPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		Backoff:    Fixed(500 * time.Millisecond),
		Name:       "embed",
	}
}

// Do runs op until it succeeds, the attempt budget is spent, the error is not
// retryable, or ctx is done
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, Result) {
	start := time.Now()
	result := Result{RetryReasons: make([]string, 0)}

	var zero T
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		value, err := op(ctx)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				log.Debug().
					Str("operation", policy.Name).
					Int("retries", attempt).
					Dur("duration", result.TotalDuration).
					Msg("Operation succeeded after retries")
			}
			return value, result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, err.Error())

		if attempt >= policy.MaxRetries {
			break
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt)
		}
		log.Debug().
			Err(err).
			Str("operation", policy.Name).
			Int("attempt", attempt+1).
			Int("max_attempts", policy.MaxRetries+1).
			Dur("delay", delay).
			Msg("Operation failed, retrying")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.LastError = ctx.Err()
				result.TotalDuration = time.Since(start)
				return zero, result
			case <-timer.C:
			}
		}
	}

	result.TotalDuration = time.Since(start)
	log.Warn().
		Err(result.LastError).
		Str("operation", policy.Name).
		Int("attempts", result.Attempts).
		Msg("Operation failed after all attempts")
	return zero, result
}

// IsRetryableError determines if an error is likely transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
		"unavailable",
		"eof",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
