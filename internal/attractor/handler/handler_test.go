package handler

import (
	"context"
	"testing"

	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

type stubHandler struct{ typ string }

func (s stubHandler) HandlerType() string { return s.typ }

func (s stubHandler) Execute(ctx context.Context, node *model.PipelineNode, rc *runtime.Context, g *model.PipelineGraph) (runtime.Outcome, error) {
	return runtime.Outcome{Status: runtime.StatusSuccess}, nil
}

func TestResolveType_ExplicitNodeTypeWins(t *testing.T) {
	n := &model.PipelineNode{ID: "a", Shape: "box", NodeType: "tool"}
	if got := ResolveType(n); got != "tool" {
		t.Fatalf("ResolveType = %q, want tool", got)
	}
}

func TestResolveType_ConditionalWithPromptCoercesToCodergen(t *testing.T) {
	n := &model.PipelineNode{ID: "a", NodeType: "conditional", Prompt: "do something"}
	if got := ResolveType(n); got != "codergen" {
		t.Fatalf("ResolveType = %q, want codergen", got)
	}
}

func TestResolveType_ConditionalWithoutPromptStaysConditional(t *testing.T) {
	n := &model.PipelineNode{ID: "a", NodeType: "conditional"}
	if got := ResolveType(n); got != "conditional" {
		t.Fatalf("ResolveType = %q, want conditional", got)
	}
}

func TestResolveType_FallsBackToShapeTable(t *testing.T) {
	cases := map[string]string{
		"Mdiamond":      "start",
		"Msquare":       "exit",
		"box":           "codergen",
		"hexagon":       "wait.human",
		"component":     "parallel",
		"tripleoctagon": "parallel.fan_in",
		"parallelogram": "tool",
		"house":         "stack.manager_loop",
	}
	for shape, want := range cases {
		n := &model.PipelineNode{ID: "a", Shape: shape}
		if got := ResolveType(n); got != want {
			t.Fatalf("ResolveType(shape=%q) = %q, want %q", shape, got, want)
		}
	}
}

func TestResolveType_DiamondShapeWithPromptCoercesToCodergen(t *testing.T) {
	n := &model.PipelineNode{ID: "a", Shape: "diamond", Prompt: "route"}
	if got := ResolveType(n); got != "codergen" {
		t.Fatalf("ResolveType = %q, want codergen", got)
	}
}

func TestResolveType_UnknownShapeDefaultsToCodergen(t *testing.T) {
	n := &model.PipelineNode{ID: "a", Shape: "pentagon"}
	if got := ResolveType(n); got != "codergen" {
		t.Fatalf("ResolveType = %q, want codergen", got)
	}
}

func TestRegistry_RegisterGetHas(t *testing.T) {
	r := NewRegistry()
	if r.Has("codergen") {
		t.Fatalf("empty registry should not have codergen")
	}
	r.Register(stubHandler{typ: "codergen"})
	if !r.Has("codergen") {
		t.Fatalf("registry should have codergen after Register")
	}
	h, ok := r.Get("codergen")
	if !ok || h.HandlerType() != "codergen" {
		t.Fatalf("Get(codergen) = %v, %v", h, ok)
	}
}

func TestRegistry_ResolveUsesCascade(t *testing.T) {
	r := NewRegistry()
	r.Register(stubHandler{typ: "start"})
	n := &model.PipelineNode{ID: "s", Shape: "Mdiamond"}
	h, typ, ok := r.Resolve(n)
	if !ok || typ != "start" || h.HandlerType() != "start" {
		t.Fatalf("Resolve = %v, %q, %v", h, typ, ok)
	}
}

func TestRegistry_ResolveMissesWhenTypeUnregistered(t *testing.T) {
	r := NewRegistry()
	n := &model.PipelineNode{ID: "t", Shape: "parallelogram"}
	_, typ, ok := r.Resolve(n)
	if ok || typ != "tool" {
		t.Fatalf("Resolve = _, %q, %v, want tool/false", typ, ok)
	}
}
