// Package engine implements the five-phase pipeline runner: parse,
// validate, initialize, execute (the traversal loop with handler dispatch,
// edge selection, retry, goal gates, checkpointing, and events), finalize.
package engine

import (
	"context"
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

// StartHandler is the trivial handler bound to the "start" type (shape
// Mdiamond). It performs no work of its own; the traversal loop begins at
// this node and a single Success outcome lets edge selection proceed
// immediately.
type StartHandler struct{}

func (StartHandler) HandlerType() string { return "start" }

func (StartHandler) Execute(ctx context.Context, node *model.PipelineNode, rc *runtime.Context, g *model.PipelineGraph) (runtime.Outcome, error) {
	return runtime.Outcome{Status: runtime.StatusSuccess, Notes: "start"}, nil
}

// ExitHandler is the trivial handler bound to the "exit" type (shape
// Msquare).
type ExitHandler struct{}

func (ExitHandler) HandlerType() string { return "exit" }

func (ExitHandler) Execute(ctx context.Context, node *model.PipelineNode, rc *runtime.Context, g *model.PipelineGraph) (runtime.Outcome, error) {
	return runtime.Outcome{Status: runtime.StatusSuccess, Notes: "exit"}, nil
}

// ConditionalHandler is the pass-through routing handler bound to the
// "conditional" type (shape diamond, no prompt). It never invents a new
// outcome: it carries the previous stage's status/preferred_label/
// failure_reason forward unchanged, since the edges leaving a conditional
// node typically branch on exactly those context keys.
type ConditionalHandler struct{}

func (ConditionalHandler) HandlerType() string { return "conditional" }

func (ConditionalHandler) Execute(ctx context.Context, node *model.PipelineNode, rc *runtime.Context, g *model.PipelineGraph) (runtime.Outcome, error) {
	prevStatus := runtime.StatusSuccess
	prevPreferred := ""
	prevFailure := ""
	if rc != nil {
		if st, err := runtime.ParseStageStatus(rc.GetString("outcome", "")); err == nil && st != "" {
			prevStatus = st
		}
		prevPreferred = rc.GetString("preferred_label", "")
		prevFailure = rc.GetString("failure_reason", "")
	}
	return runtime.Outcome{
		Status:         prevStatus,
		PreferredLabel: prevPreferred,
		FailureReason:  strings.TrimSpace(prevFailure),
		Notes:          "conditional pass-through",
	}, nil
}
