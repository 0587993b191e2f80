// Package validate runs the fixed lint rule set against a built
// PipelineGraph. Error-severity findings gate execution; warnings are
// advisory.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/cond"
	"github.com/attractor-run/attractor/internal/attractor/model"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Diagnostic is one lint finding. Fix, when set, is a suggested remedy.
type Diagnostic struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	NodeID   string   `json:"node_id,omitempty"`
	EdgeFrom string   `json:"edge_from,omitempty"`
	EdgeTo   string   `json:"edge_to,omitempty"`
	Fix      string   `json:"fix,omitempty"`
}

// Validate runs the full rule set and returns every diagnostic found.
func Validate(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	diags = append(diags, lintStartNode(g)...)
	diags = append(diags, lintTerminalNode(g)...)
	diags = append(diags, lintReachability(g)...)
	diags = append(diags, lintEdgeTargetExists(g)...)
	diags = append(diags, lintStartNoIncoming(g)...)
	diags = append(diags, lintExitNoOutgoing(g)...)
	diags = append(diags, lintConditionSyntax(g)...)
	diags = append(diags, lintFidelityValid(g)...)
	diags = append(diags, lintRetryTargetExists(g)...)
	diags = append(diags, lintGoalGateHasRetry(g)...)
	diags = append(diags, lintPromptOnLLMNodes(g)...)
	return diags
}

// ValidateOrRaise joins every Error-severity message with "; " and returns
// a *apperr.Error (KindValidationError), or nil if there are none.
func ValidateOrRaise(g *model.PipelineGraph) error {
	diags := Validate(g)
	var msgs []string
	for _, d := range diags {
		if d.Severity == SeverityError {
			msgs = append(msgs, d.Rule+": "+d.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return apperr.ValidationError(strings.Join(msgs, "; "))
}

func lintStartNode(g *model.PipelineGraph) []Diagnostic {
	ids := g.StartNodeIDs()
	if len(ids) != 1 {
		return []Diagnostic{{
			Rule:     "start_node",
			Severity: SeverityError,
			Message:  fmt.Sprintf("pipeline must have exactly one start node (found %d: %v)", len(ids), ids),
		}}
	}
	return nil
}

func lintTerminalNode(g *model.PipelineGraph) []Diagnostic {
	if len(g.TerminalNodeIDs()) == 0 {
		return []Diagnostic{{
			Rule:     "terminal_node",
			Severity: SeverityError,
			Message:  "pipeline has no terminal node",
		}}
	}
	return nil
}

func lintReachability(g *model.PipelineGraph) []Diagnostic {
	start, ok := g.StartNodeID()
	if !ok {
		return nil // start_node already reports this
	}
	reachable := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			if !reachable[e.To] {
				reachable[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	var diags []Diagnostic
	for _, id := range g.NodeIDs() {
		if !reachable[id] {
			diags = append(diags, Diagnostic{
				Rule:     "reachability",
				Severity: SeverityError,
				Message:  fmt.Sprintf("node %q is unreachable from the start node", id),
				NodeID:   id,
			})
		}
	}
	return diags
}

func lintEdgeTargetExists(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.AllEdges() {
		if _, ok := g.Node(e.To); !ok {
			diags = append(diags, Diagnostic{
				Rule:     "edge_target_exists",
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge references non-existent node %q", e.To),
				EdgeFrom: e.From,
				EdgeTo:   e.To,
			})
		}
		if _, ok := g.Node(e.From); !ok {
			diags = append(diags, Diagnostic{
				Rule:     "edge_target_exists",
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge originates from non-existent node %q", e.From),
				EdgeFrom: e.From,
				EdgeTo:   e.To,
			})
		}
	}
	return diags
}

func lintStartNoIncoming(g *model.PipelineGraph) []Diagnostic {
	start, ok := g.StartNodeID()
	if !ok {
		return nil
	}
	for _, e := range g.AllEdges() {
		if e.To == start {
			return []Diagnostic{{
				Rule:     "start_no_incoming",
				Severity: SeverityError,
				Message:  fmt.Sprintf("start node %q must have no incoming edges", start),
				NodeID:   start,
			}}
		}
	}
	return nil
}

func lintExitNoOutgoing(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	for _, id := range g.TerminalNodeIDs() {
		if len(g.Outgoing(id)) > 0 {
			diags = append(diags, Diagnostic{
				Rule:     "exit_no_outgoing",
				Severity: SeverityError,
				Message:  fmt.Sprintf("terminal node %q must have no outgoing edges", id),
				NodeID:   id,
			})
		}
	}
	return diags
}

func lintConditionSyntax(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.AllEdges() {
		if e.Condition == "" {
			continue
		}
		if _, err := cond.Parse(e.Condition); err != nil {
			diags = append(diags, Diagnostic{
				Rule:     "condition_syntax",
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge %s->%s has an invalid condition: %v", e.From, e.To, err),
				EdgeFrom: e.From,
				EdgeTo:   e.To,
			})
		}
	}
	return diags
}

var fidelitySummaryRe = regexp.MustCompile(`^summary:.+$`)

func validFidelity(v string) bool {
	switch v {
	case "full", "truncate", "compact", "summary":
		return true
	}
	return fidelitySummaryRe.MatchString(v)
}

func lintFidelityValid(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		if n.Fidelity != "" && !validFidelity(n.Fidelity) {
			diags = append(diags, Diagnostic{
				Rule:     "fidelity_valid",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q has invalid fidelity %q", id, n.Fidelity),
				NodeID:   id,
			})
		}
	}
	for _, e := range g.AllEdges() {
		if e.Fidelity != "" && !validFidelity(e.Fidelity) {
			diags = append(diags, Diagnostic{
				Rule:     "fidelity_valid",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("edge %s->%s has invalid fidelity %q", e.From, e.To, e.Fidelity),
				EdgeFrom: e.From,
				EdgeTo:   e.To,
			})
		}
	}
	return diags
}

func lintRetryTargetExists(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	check := func(nodeID, target, which string) {
		if target == "" {
			return
		}
		if _, ok := g.Node(target); !ok {
			diags = append(diags, Diagnostic{
				Rule:     "retry_target_exists",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q: %s %q does not exist", nodeID, which, target),
				NodeID:   nodeID,
			})
		}
	}
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		check(id, n.RetryTarget, "retry_target")
		check(id, n.FallbackRetryTarget, "fallback_retry_target")
	}
	if rt, ok := g.Attrs["retry_target"]; ok {
		if s, ok := rt.Coerce(); ok {
			check(g.Name, s, "graph retry_target")
		}
	}
	if rt, ok := g.Attrs["fallback_retry_target"]; ok {
		if s, ok := rt.Coerce(); ok {
			check(g.Name, s, "graph fallback_retry_target")
		}
	}
	return diags
}

func lintGoalGateHasRetry(g *model.PipelineGraph) []Diagnostic {
	var diags []Diagnostic
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		if n.GoalGate && n.RetryTarget == "" {
			diags = append(diags, Diagnostic{
				Rule:     "goal_gate_has_retry",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q has goal_gate=true but no retry_target", id),
				NodeID:   id,
				Fix:      "add a retry_target attribute naming the node to re-run when this gate fails",
			})
		}
	}
	return diags
}

var promptShapes = map[string]bool{
	"box": true, "cds": true, "component": true, "note": true,
}

func lintPromptOnLLMNodes(g *model.PipelineGraph) []Diagnostic {
	start, _ := g.StartNodeID()
	terminals := map[string]bool{}
	for _, id := range g.TerminalNodeIDs() {
		terminals[id] = true
	}
	var diags []Diagnostic
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		if !promptShapes[n.Shape] {
			continue
		}
		if id == start || terminals[id] {
			continue
		}
		if n.Prompt != "" {
			continue
		}
		if n.Label != id {
			continue
		}
		diags = append(diags, Diagnostic{
			Rule:     "prompt_on_llm_nodes",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("node %q looks like an LLM node but has no prompt and no custom label", id),
			NodeID:   id,
			Fix:      "add a prompt attribute, or a label describing the stage's work",
		})
	}
	return diags
}
