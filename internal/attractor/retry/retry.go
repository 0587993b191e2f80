// Package retry implements the engine's retry policy: three deterministic
// backoff variants (fixed, exponential, none) and the attempt loop that
// drives handler re-execution on retryable failures.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

// Policy computes the delay before retry attempt n (0-indexed: attempt 0 is
// the delay before the first retry, i.e. after the initial try failed).
type Policy interface {
	Delay(attempt int) time.Duration
}

// Fixed applies the same delay for every attempt.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) Delay(int) time.Duration { return f.Interval }

// Exponential computes min(base * 2^attempt, max), saturating the exponent
// so large attempt counts never overflow.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 { // 2^62 already dwarfs any realistic Max
		attempt = 62
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	return time.Duration(d)
}

// None applies zero delay.
type None struct{}

func (None) Delay(int) time.Duration { return 0 }

// DefaultPolicy is the engine's default backoff.
func DefaultPolicy() Policy {
	return Exponential{Base: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Retryable classifies errors as retryable: rate-limit, command-timeout,
// and any provider error explicitly flagged retryable.
func Retryable(err error) bool { return apperr.Retryable(err) }

// Func is the operation ExecuteWithRetry drives; it returns either a
// handler Outcome or an error.
type Func func(ctx context.Context, attempt int) (runtime.Outcome, error)

// ExecuteWithRetry runs f up to maxRetries+1 times:
//   - for attempt in 0..=maxRetries: invoke f.
//   - Outcome with status Retry and attempt < maxRetries: sleep, continue.
//   - Outcome with any other status: return as-is (even Retry at the final attempt).
//   - Err(retryable) and attempt < maxRetries: sleep, continue.
//   - Any other Err (non-retryable, or the final attempt): return that
//     error as-is, so the caller sees the actual last failure (a rate
//     limit stays a rate limit) rather than a synthesized wrapper.
//   - If every attempt is exhausted without returning, return RetriesExhausted.
func ExecuteWithRetry(ctx context.Context, f Func, maxRetries int, policy Policy, nodeID string) (runtime.Outcome, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		outcome, err := f(ctx, attempt)
		if err != nil {
			if Retryable(err) && attempt < maxRetries {
				if sleepErr := sleep(ctx, policy.Delay(attempt)); sleepErr != nil {
					return runtime.Outcome{}, sleepErr
				}
				continue
			}
			return runtime.Outcome{}, err
		}

		if outcome.Status == runtime.StatusRetry && attempt < maxRetries {
			if sleepErr := sleep(ctx, policy.Delay(attempt)); sleepErr != nil {
				return runtime.Outcome{}, sleepErr
			}
			continue
		}
		return outcome, nil
	}
	return runtime.Outcome{}, apperr.RetriesExhausted(nodeID, maxRetries+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
