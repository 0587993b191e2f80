// Package runtime holds the handler-facing value types that flow through an
// attractor run: the outcome a handler returns, the status it carries, and
// the shared context store.
package runtime

import (
	"fmt"
	"strings"
)

// StageStatus is the status a handler reports for a single node execution.
type StageStatus string

const (
	StatusSuccess        StageStatus = "success"
	StatusPartialSuccess StageStatus = "partial_success"
	StatusRetry          StageStatus = "retry"
	StatusFail           StageStatus = "fail"
	StatusSkipped        StageStatus = "skipped"
)

// ParseStageStatus normalizes common aliases to the five canonical values.
// Anything else lowercases and passes through unchanged: pipeline authors
// use custom outcome values (e.g. "port", "done") for multi-way conditional
// routing, and the condition language needs to compare against those too.
func ParseStageStatus(s string) (StageStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "success", "ok":
		return StatusSuccess, nil
	case "partial_success", "partialsuccess", "partial-success":
		return StatusPartialSuccess, nil
	case "retry":
		return StatusRetry, nil
	case "fail", "failure", "error":
		return StatusFail, nil
	case "skipped", "skip":
		return StatusSkipped, nil
	default:
		if normalized == "" {
			return "", fmt.Errorf("invalid stage status: empty string")
		}
		return StageStatus(normalized), nil
	}
}

// IsCanonical reports whether s is one of the five status values the engine
// assigns special meaning to, as opposed to a custom routing value.
func (s StageStatus) IsCanonical() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusRetry, StatusFail, StatusSkipped:
		return true
	default:
		return false
	}
}

// GateSatisfied reports whether this status satisfies a goal gate:
// only Success and PartialSuccess do.
func (s StageStatus) GateSatisfied() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// Outcome is the value a handler returns for a node execution.
type Outcome struct {
	Status           StageStatus    `json:"status"`
	PreferredLabel   string         `json:"preferred_label,omitempty"`
	SuggestedNextIDs []string       `json:"suggested_next_ids,omitempty"`
	ContextUpdates   map[string]any `json:"context_updates,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	FailureReason    string         `json:"failure_reason,omitempty"`
}

// Canonicalize normalizes Status and fills nil maps/slices with empty ones so
// callers don't need nil checks.
func (o Outcome) Canonicalize() (Outcome, error) {
	st, err := ParseStageStatus(string(o.Status))
	if err != nil {
		return Outcome{}, err
	}
	o.Status = st
	if o.ContextUpdates == nil {
		o.ContextUpdates = map[string]any{}
	}
	if o.SuggestedNextIDs == nil {
		o.SuggestedNextIDs = []string{}
	}
	return o, nil
}

// Validate enforces that Fail/Retry outcomes carry a FailureReason, so the
// reason a pipeline stopped is never silently lost.
func (o Outcome) Validate() error {
	co, err := o.Canonicalize()
	if err != nil {
		return err
	}
	if (co.Status == StatusFail || co.Status == StatusRetry) && strings.TrimSpace(co.FailureReason) == "" {
		return fmt.Errorf("failure_reason must be non-empty when status=%q", co.Status)
	}
	return nil
}
