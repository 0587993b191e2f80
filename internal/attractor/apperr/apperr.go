// Package apperr defines the error taxonomy surfaced at the engine
// boundary. Each kind is a distinct sentinel so callers can use
// errors.Is / errors.As instead of matching on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category.
type Kind string

const (
	KindParseError            Kind = "parse_error"
	KindValidationError       Kind = "validation_error"
	KindHandlerError          Kind = "handler_error"
	KindGoalGateUnsatisfied   Kind = "goal_gate_unsatisfied"
	KindNoRetryTarget         Kind = "no_retry_target"
	KindRetriesExhausted      Kind = "retries_exhausted"
	KindRateLimited           Kind = "rate_limited"
	KindCommandTimeout        Kind = "command_timeout"
	KindAuthError             Kind = "auth_error"
	KindContextLengthExceeded Kind = "context_length_exceeded"
	KindOther                 Kind = "other"
)

// Error is the concrete error type used across the engine. It carries a Kind
// so the taxonomy survives wrapping, plus whatever structured fields the
// specific kind needs.
type Error struct {
	Kind      Kind
	Message   string
	Node      string
	Line      int
	Col       int
	Attempts  int
	Transient bool // handler errors only: marks the failure retryable
	Wrapped   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindParseError:
		if e.Line > 0 {
			return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Message)
		}
		return fmt.Sprintf("parse error: %s", e.Message)
	case KindGoalGateUnsatisfied:
		return fmt.Sprintf("goal gate unsatisfied: node %q", e.Node)
	case KindNoRetryTarget:
		return fmt.Sprintf("no retry target resolvable for node %q", e.Node)
	case KindRetriesExhausted:
		return fmt.Sprintf("retries exhausted for node %q after %d attempts", e.Node, e.Attempts)
	case KindHandlerError:
		return fmt.Sprintf("handler error (node %q): %s", e.Node, e.Message)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, apperr.New(KindRateLimited, "")) style checks work even
// through fmt.Errorf("...: %w", err) wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

func ParseError(line, col int, format string, args ...any) *Error {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: KindParseError, Line: line, Col: col, Message: message}
}

func ValidationError(message string) *Error {
	return &Error{Kind: KindValidationError, Message: message}
}

func HandlerError(node, message string) *Error {
	return &Error{Kind: KindHandlerError, Node: node, Message: message}
}

// RetryableHandlerError marks a handler failure as transient, so the retry
// wrapper re-executes the node instead of aborting the run.
func RetryableHandlerError(node, message string) *Error {
	return &Error{Kind: KindHandlerError, Node: node, Message: message, Transient: true}
}

func GoalGateUnsatisfied(node string) *Error {
	return &Error{Kind: KindGoalGateUnsatisfied, Node: node}
}

func NoRetryTarget(node string) *Error {
	return &Error{Kind: KindNoRetryTarget, Node: node}
}

func RetriesExhausted(node string, attempts int) *Error {
	return &Error{Kind: KindRetriesExhausted, Node: node, Attempts: attempts}
}

// Retryable reports whether an error should be retried by the retry
// wrapper: rate limits, command timeouts, and handler errors flagged
// transient. Terminal kinds (auth, validation, context-length-exceeded,
// parse) are never retryable.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRateLimited, KindCommandTimeout:
		return true
	case KindHandlerError:
		return e.Transient
	default:
		return false
	}
}

// Terminal reports whether an error should abort the whole run rather than
// be retried or routed around.
func Terminal(err error) bool {
	return !Retryable(err)
}
