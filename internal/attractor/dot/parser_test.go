package dot

import (
	"strings"
	"testing"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
)

func TestParseBasicDigraph(t *testing.T) {
	src := []byte(`
		digraph pipeline {
			start [shape="Mdiamond"];
			work [node_type="codergen", max_retries=3, timeout="900s"];
			exit [shape="Msquare"];

			start -> work;
			work -> exit [label="done"];
		}
	`)
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dg.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(dg.Nodes))
	}
	if len(dg.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(dg.Edges))
	}

	pg, err := Build(dg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	start, ok := pg.StartNodeID()
	if !ok || start != "start" {
		t.Fatalf("StartNodeID() = %q, %v", start, ok)
	}
	work, ok := pg.Node("work")
	if !ok {
		t.Fatalf("work node missing")
	}
	if work.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", work.MaxRetries)
	}
	if work.Timeout == nil || *work.Timeout != 900e9 {
		t.Fatalf("Timeout = %v, want 900s", work.Timeout)
	}
}

func TestParseRejectsStrictAndUndirected(t *testing.T) {
	cases := []string{
		`strict digraph g { a -> b; }`,
		`graph g { a -- b; }`,
		`digraph g { a -- b; }`,
	}
	for _, src := range cases {
		_, err := Parse([]byte(src))
		if err == nil {
			t.Fatalf("Parse(%q) expected error, got nil", src)
		}
		var appErr *apperr.Error
		if !asAppErr(err, &appErr) {
			t.Fatalf("Parse(%q) error is not an *apperr.Error: %v", src, err)
		}
		if appErr.Kind != apperr.KindParseError {
			t.Fatalf("Parse(%q) error kind = %v, want parse_error", src, appErr.Kind)
		}
	}
}

func asAppErr(err error, target **apperr.Error) bool {
	e, ok := err.(*apperr.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestNodeAndEdgeDefaultsLayering(t *testing.T) {
	src := []byte(`
		digraph g {
			node [shape="box"];
			a;
			subgraph cluster_x {
				node [shape="ellipse"];
				b;
			}
			c [shape="diamond"];
		}
	`)
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, _ := dg.Nodes["a"].Attrs["shape"].AsString(); got != "box" {
		t.Fatalf("a.shape = %q, want box", got)
	}
	if got, _ := dg.Nodes["b"].Attrs["shape"].AsString(); got != "ellipse" {
		t.Fatalf("b.shape = %q, want ellipse (subgraph default should override outer)", got)
	}
	if got, _ := dg.Nodes["c"].Attrs["shape"].AsString(); got != "diamond" {
		t.Fatalf("c.shape = %q, want diamond (explicit wins)", got)
	}
}

func TestSubgraphLabelDerivesClass(t *testing.T) {
	src := []byte(`
		digraph g {
			subgraph cluster_review {
				label="Code Review";
				reviewer [class="existing"];
			}
		}
	`)
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cls, _ := dg.Nodes["reviewer"].Attrs["class"].AsString()
	if !strings.Contains(cls, "existing") || !strings.Contains(cls, "code-review") {
		t.Fatalf("reviewer class = %q, want both existing and derived code-review", cls)
	}
}

func TestEdgeChainExpansion(t *testing.T) {
	src := []byte(`digraph g { a -> b -> c -> d [label="chain"]; }`)
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dg.Edges) != 3 {
		t.Fatalf("expected 3 edges from chain expansion, got %d", len(dg.Edges))
	}
	for _, e := range dg.Edges {
		lbl, _ := e.Attrs["label"].AsString()
		if lbl != "chain" {
			t.Fatalf("edge %s->%s label = %q, want chain", e.From, e.To, lbl)
		}
	}
}

func TestAutoCreatesMissingEdgeEndpoints(t *testing.T) {
	src := []byte(`digraph g { a -> b; }`)
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dg.Nodes) != 2 {
		t.Fatalf("expected a and b auto-created, got %d nodes", len(dg.Nodes))
	}
}

func TestCommentsStrippedPreservingLines(t *testing.T) {
	src := []byte("digraph g {\n  // a comment\n  a -> b; /* inline */ b -> c;\n}")
	dg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(dg.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(dg.Edges))
	}
}

func TestParseErrorReportsLineAndColumn(t *testing.T) {
	src := []byte("digraph g {\n  a -> ;\n}")
	_, err := Parse(src)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	ae, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Line != 2 {
		t.Fatalf("expected error on line 2, got %d", ae.Line)
	}
}
