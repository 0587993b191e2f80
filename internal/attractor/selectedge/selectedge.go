// Package selectedge picks a node's next outgoing edge through a strict
// five-step priority cascade: matching conditional edges by weight, then
// the outcome's preferred label, then its suggested next ids, then
// unconditional edges by weight, then the first outgoing edge.
package selectedge

import (
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/cond"
	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

// Resolver maps a condition key to its string value: "outcome" to the
// status string, "preferred_label" to the outcome's label, anything else
// to the context.
type Resolver = cond.Resolver

// Select applies the five-step cascade and returns at most one edge. A nil
// result means zero outgoing edges (or, per step 5, is never nil when at
// least one outgoing edge exists).
func Select(g *model.PipelineGraph, nodeID string, outcome runtime.Outcome, resolve Resolver) (*model.PipelineEdge, error) {
	edges := g.Outgoing(nodeID)
	if len(edges) == 0 {
		return nil, nil
	}

	// Step 1: conditional match.
	var condMatched []*model.PipelineEdge
	for _, e := range edges {
		if strings.TrimSpace(e.Condition) == "" {
			continue
		}
		expr, err := cond.Parse(e.Condition)
		if err != nil {
			continue // a condition that fails to parse simply never matches
		}
		if cond.Evaluate(expr, resolve) {
			condMatched = append(condMatched, e)
		}
	}
	if len(condMatched) > 0 {
		return bestByWeight(condMatched), nil
	}

	// Step 2: preferred label. Any outgoing edge is eligible, in
	// adjacency (declaration) order; first match wins.
	if strings.TrimSpace(outcome.PreferredLabel) != "" {
		want := normalizeLabel(outcome.PreferredLabel)
		for _, e := range edges {
			if normalizeLabel(e.Label) == want {
				return e, nil
			}
		}
	}

	// Step 3: suggested next ids.
	for _, suggested := range outcome.SuggestedNextIDs {
		for _, e := range edges {
			if e.To == suggested {
				return e, nil
			}
		}
	}

	// Step 4: unconditional by weight.
	var uncond []*model.PipelineEdge
	for _, e := range edges {
		if strings.TrimSpace(e.Condition) == "" {
			uncond = append(uncond, e)
		}
	}
	if len(uncond) > 0 {
		return bestByWeight(uncond), nil
	}

	// Step 5: fallback - first outgoing edge, deterministic by sorted adjacency.
	return edges[0], nil
}

// bestByWeight picks the highest-weight edge, tie-broken by smallest `to`
// lexicographically, then by declaration order (parallel edges to the same
// target need the third level to stay deterministic).
func bestByWeight(edges []*model.PipelineEdge) *model.PipelineEdge {
	best := edges[0]
	for _, e := range edges[1:] {
		if better(e, best) {
			best = e
		}
	}
	return best
}

func better(a, b *model.PipelineEdge) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if a.To != b.To {
		return a.To < b.To
	}
	return a.Order < b.Order
}

// normalizeLabel lowercases, trims, and strips common accelerator
// prefixes: "[X] ", "X) ", "X- ".
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 4 && s[0] == '[' && s[2] == ']' && s[3] == ' ' {
		return strings.TrimSpace(s[4:])
	}
	if len(s) >= 3 && s[1] == ')' && s[2] == ' ' {
		return strings.TrimSpace(s[3:])
	}
	if len(s) >= 3 && s[1] == '-' && s[2] == ' ' {
		return strings.TrimSpace(s[3:])
	}
	return s
}
