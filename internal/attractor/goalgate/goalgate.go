// Package goalgate implements goal-gate enforcement: once the terminal
// node is reached, every visited node flagged goal_gate=true must have
// finished with a satisfying outcome (Success or PartialSuccess), or the
// run must reroute to a resolved retry target, or fail terminally.
package goalgate

import (
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

// RetryTargetSource names which of the four fallback levels supplied the
// resolved target, for event/diagnostic reporting.
type RetryTargetSource string

const (
	SourceNodeRetryTarget          RetryTargetSource = "node.retry_target"
	SourceNodeFallbackRetryTarget  RetryTargetSource = "node.fallback_retry_target"
	SourceGraphRetryTarget         RetryTargetSource = "graph.retry_target"
	SourceGraphFallbackRetryTarget RetryTargetSource = "graph.fallback_retry_target"
)

// ResolveRetryTarget walks the 4-level fallback chain:
// node.retry_target -> node.fallback_retry_target -> graph.retry_target ->
// graph.fallback_retry_target. Returns ("", "", false) if none is set.
func ResolveRetryTarget(g *model.PipelineGraph, nodeID string) (target string, source RetryTargetSource, ok bool) {
	if n, found := g.Node(nodeID); found {
		if t := strings.TrimSpace(n.RetryTarget); t != "" {
			return t, SourceNodeRetryTarget, true
		}
		if t := strings.TrimSpace(n.FallbackRetryTarget); t != "" {
			return t, SourceNodeFallbackRetryTarget, true
		}
	}
	if t := graphAttrString(g, "retry_target"); t != "" {
		return t, SourceGraphRetryTarget, true
	}
	if t := graphAttrString(g, "fallback_retry_target"); t != "" {
		return t, SourceGraphFallbackRetryTarget, true
	}
	return "", "", false
}

func graphAttrString(g *model.PipelineGraph, key string) string {
	v, ok := g.Attrs[key]
	if !ok {
		return ""
	}
	s, ok := v.Coerce()
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// VisitedOutcome pairs a visited node id with the last outcome it produced,
// in visitation order - the shape the engine's node_outcomes/visit history
// already tracks.
type VisitedOutcome struct {
	NodeID  string
	Outcome runtime.Outcome
}

// Enforce scans visited in order for
// the first node whose typed goal_gate is true and whose outcome status
// does not satisfy the gate. If none is found, the run may terminate
// normally (retryTarget == "", err == nil). If one is found:
//   - a resolved retry target reroutes the run there (retryTarget != "",
//     err == nil); the engine must NOT clear history (unlike loop_restart);
//   - no resolvable target raises apperr.GoalGateUnsatisfied, a terminal
//     error.
func Enforce(g *model.PipelineGraph, visited []VisitedOutcome) (retryTarget string, source RetryTargetSource, err error) {
	for _, v := range visited {
		n, ok := g.Node(v.NodeID)
		if !ok || !n.GoalGate {
			continue
		}
		if v.Outcome.Status.GateSatisfied() {
			continue
		}
		target, src, found := ResolveRetryTarget(g, v.NodeID)
		if !found {
			return "", "", apperr.GoalGateUnsatisfied(v.NodeID)
		}
		return target, src, nil
	}
	return "", "", nil
}
