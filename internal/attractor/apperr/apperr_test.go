package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{ParseError(3, 5, "unexpected token"), `parse error at 3:5: unexpected token`},
		{New(KindParseError, "bad file"), "parse error: bad file"},
		{GoalGateUnsatisfied("review"), `goal gate unsatisfied: node "review"`},
		{NoRetryTarget("review"), `no retry target resolvable for node "review"`},
		{RetriesExhausted("build", 3), `retries exhausted for node "build" after 3 attempts`},
		{HandlerError("build", "timed out"), `handler error (node "build"): timed out`},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Fatalf("Error() = %q, want %q", got, c.want)
		}
	}
}

func TestIs_MatchesSameKindThroughWrapping(t *testing.T) {
	base := GoalGateUnsatisfied("review")
	wrapped := fmt.Errorf("run failed: %w", base)
	if !errors.Is(wrapped, GoalGateUnsatisfied("other-node")) {
		t.Fatalf("errors.Is should match by Kind regardless of Node")
	}
	if errors.Is(wrapped, NoRetryTarget("review")) {
		t.Fatalf("errors.Is should not match a different Kind")
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap(KindHandlerError, "handler crashed", inner)
	if errors.Unwrap(wrapped) != inner {
		t.Fatalf("Unwrap did not return the wrapped error")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindRateLimited, "")) {
		t.Fatalf("rate_limited should be retryable")
	}
	if !Retryable(New(KindCommandTimeout, "")) {
		t.Fatalf("command_timeout should be retryable")
	}
	if Retryable(New(KindAuthError, "")) {
		t.Fatalf("auth_error should not be retryable")
	}
	if Retryable(errors.New("plain error")) {
		t.Fatalf("a non-*Error should not be retryable")
	}
	if Retryable(HandlerError("n", "boom")) {
		t.Fatalf("a plain handler error should not be retryable")
	}
	if !Retryable(RetryableHandlerError("n", "flaky backend")) {
		t.Fatalf("a transient handler error should be retryable")
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(New(KindRateLimited, "")) {
		t.Fatalf("rate_limited should not be terminal")
	}
	if !Terminal(New(KindAuthError, "")) {
		t.Fatalf("auth_error should be terminal")
	}
	if !Terminal(errors.New("plain error")) {
		t.Fatalf("a non-*Error should be treated as terminal")
	}
}
