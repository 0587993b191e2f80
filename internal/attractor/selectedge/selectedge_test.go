package selectedge

import (
	"testing"

	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

func graphWithEdges(edges []*model.PipelineEdge) *model.PipelineGraph {
	nodes := map[string]*model.PipelineNode{"a": {ID: "a"}}
	ids := map[string]bool{"a": true}
	for _, e := range edges {
		ids[e.To] = true
	}
	for id := range ids {
		if _, ok := nodes[id]; !ok {
			nodes[id] = &model.PipelineNode{ID: id}
		}
	}
	return model.NewPipelineGraph("g", "", nil, nodes, edges)
}

func TestConditionalMatchBeatsWeight(t *testing.T) {
	edges := []*model.PipelineEdge{
		{From: "a", To: "high_weight", Weight: 100},
		{From: "a", To: "conditional", Condition: "outcome=success", Weight: 1},
	}
	g := graphWithEdges(edges)
	resolve := func(key string) string {
		if key == "outcome" {
			return "success"
		}
		return ""
	}
	e, err := Select(g, "a", runtime.Outcome{Status: runtime.StatusSuccess}, resolve)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e.To != "conditional" {
		t.Fatalf("To = %q, want conditional (matching condition beats weight)", e.To)
	}
}

func TestPreferredLabelMatch(t *testing.T) {
	edges := []*model.PipelineEdge{
		{From: "a", To: "x", Label: "[R] Retry"},
		{From: "a", To: "y", Label: "Continue"},
	}
	g := graphWithEdges(edges)
	e, err := Select(g, "a", runtime.Outcome{PreferredLabel: "retry"}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e.To != "x" {
		t.Fatalf("To = %q, want x (label normalization should match '[R] Retry')", e.To)
	}
}

func TestNormalizeLabelStripsAcceleratorPrefixes(t *testing.T) {
	cases := map[string]string{
		"[Y] Yes, approve": "yes, approve",
		"Y) Yes, approve":  "yes, approve",
		"Y- Yes, approve":  "yes, approve",
		"Continue":         "continue",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSuggestedNextIDs(t *testing.T) {
	edges := []*model.PipelineEdge{
		{From: "a", To: "x"},
		{From: "a", To: "y"},
	}
	g := graphWithEdges(edges)
	e, err := Select(g, "a", runtime.Outcome{SuggestedNextIDs: []string{"y", "x"}}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e.To != "y" {
		t.Fatalf("To = %q, want y (first suggested id present)", e.To)
	}
}

func TestUnconditionalByWeightWithTieBreak(t *testing.T) {
	edges := []*model.PipelineEdge{
		{From: "a", To: "b", Weight: 5, Order: 0},
		{From: "a", To: "c", Weight: 5, Order: 1},
	}
	g := graphWithEdges(edges)
	e, err := Select(g, "a", runtime.Outcome{}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e.To != "b" {
		t.Fatalf("To = %q, want b (equal weight, smallest To lexicographically)", e.To)
	}
}

func TestFallbackWhenAllEdgesHaveUnmatchedConditions(t *testing.T) {
	edges := []*model.PipelineEdge{
		{From: "a", To: "x", Condition: "outcome=never", Order: 0},
		{From: "a", To: "y", Condition: "outcome=also_never", Order: 1},
	}
	g := graphWithEdges(edges)
	e, err := Select(g, "a", runtime.Outcome{Status: runtime.StatusSuccess}, func(string) string { return "success" })
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e.To != "x" {
		t.Fatalf("To = %q, want x (first outgoing edge in sorted adjacency)", e.To)
	}
}

func TestZeroOutgoingEdgesReturnsNil(t *testing.T) {
	g := graphWithEdges(nil)
	e, err := Select(g, "a", runtime.Outcome{}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil edge for node with no outgoing edges")
	}
}
