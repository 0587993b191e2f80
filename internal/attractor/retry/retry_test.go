package retry

import (
	"context"
	"testing"
	"time"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

func TestExponentialBackoffMonotonicAndCapped(t *testing.T) {
	p := Exponential{Base: 500 * time.Millisecond, Max: 30 * time.Second}
	prev := p.Delay(0)
	for a := 1; a < 20; a++ {
		d := p.Delay(a)
		if d < prev {
			t.Fatalf("delay(%d)=%v < delay(%d)=%v, expected monotonic", a, d, a-1, prev)
		}
		if d > p.Max {
			t.Fatalf("delay(%d)=%v exceeds max %v", a, d, p.Max)
		}
		prev = d
	}
}

func TestDefaultPolicyMatchesSpec(t *testing.T) {
	p := DefaultPolicy().(Exponential)
	if p.Base != 500*time.Millisecond || p.Max != 30*time.Second {
		t.Fatalf("DefaultPolicy = %+v, want base=500ms max=30s", p)
	}
}

func TestExecuteWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	f := func(ctx context.Context, attempt int) (runtime.Outcome, error) {
		calls++
		if attempt < 2 {
			return runtime.Outcome{}, apperr.New(apperr.KindRateLimited, "rate limited")
		}
		return runtime.Outcome{Status: runtime.StatusSuccess}, nil
	}
	out, err := ExecuteWithRetry(context.Background(), f, 3, None{}, "node1")
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if out.Status != runtime.StatusSuccess {
		t.Fatalf("Status = %v, want success", out.Status)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetryReturnsRetryStatusAtFinalAttempt(t *testing.T) {
	f := func(ctx context.Context, attempt int) (runtime.Outcome, error) {
		return runtime.Outcome{Status: runtime.StatusRetry}, nil
	}
	out, err := ExecuteWithRetry(context.Background(), f, 1, None{}, "node1")
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if out.Status != runtime.StatusRetry {
		t.Fatalf("Status = %v, want retry returned as-is at final attempt", out.Status)
	}
}

func TestExecuteWithRetryNonRetryableErrorReturnsImmediately(t *testing.T) {
	calls := 0
	f := func(ctx context.Context, attempt int) (runtime.Outcome, error) {
		calls++
		return runtime.Outcome{}, apperr.New(apperr.KindAuthError, "bad credentials")
	}
	_, err := ExecuteWithRetry(context.Background(), f, 5, None{}, "node1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable must not retry)", calls)
	}
}

func TestExecuteWithRetryExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	f := func(ctx context.Context, attempt int) (runtime.Outcome, error) {
		calls++
		return runtime.Outcome{}, apperr.New(apperr.KindRateLimited, "still limited")
	}
	_, err := ExecuteWithRetry(context.Background(), f, 2, None{}, "node1")
	// The caller gets the actual last failure, not a synthesized wrapper: a
	// rate limit that outlasted every retry is still a rate limit.
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.KindRateLimited {
		t.Fatalf("expected the last RateLimited error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (max_retries+1)", calls)
	}
}
