package model

import (
	"sort"
	"strings"
	"time"
)

// PipelineNode is the typed, builder-lowered view of a node.
type PipelineNode struct {
	ID                   string
	Label                string
	Shape                string
	NodeType             string // empty if unset
	Prompt               string // empty if unset
	MaxRetries           uint
	GoalGate             bool
	RetryTarget          string // empty if unset
	FallbackRetryTarget  string // empty if unset
	Fidelity             string // empty if unset
	ThreadID             string // empty if unset
	Classes              []string
	Timeout              *time.Duration
	LLMModel             string // empty if unset
	LLMProvider          string // empty if unset
	ReasoningEffort      string // empty if unset
	AutoStatus           bool
	AllowPartial         bool
	RawAttrs             map[string]AttributeValue
}

// Attr returns the coerced string form of a raw attribute, or def if absent
// or not string-coercible (Duration values return def).
func (n *PipelineNode) Attr(key, def string) string {
	if n == nil {
		return def
	}
	v, ok := n.RawAttrs[key]
	if !ok {
		return def
	}
	s, ok := v.Coerce()
	if !ok {
		return def
	}
	return s
}

// PipelineEdge is the typed view of an edge.
type PipelineEdge struct {
	From        string
	To          string
	Label       string // empty if unset
	Condition   string // empty if unset
	Weight      int32
	Fidelity    string // empty if unset
	ThreadID    string // empty if unset
	LoopRestart bool
	Order       int // declaration order, used as the final tie-break
	Synthetic   bool
}

// adjSlice is an (start, count) window into PipelineGraph.edges.
type adjSlice struct {
	start, count int
}

// PipelineGraph is the typed, validated graph the engine walks.
// Edges are sorted by From so each
// node's outgoing edges form a contiguous, stable-ordered slice, indexed by
// an adjacency map for O(1) lookup.
type PipelineGraph struct {
	Name  string
	Goal  string
	Attrs map[string]AttributeValue

	nodes     map[string]*PipelineNode
	edges     []*PipelineEdge
	adjacency map[string]adjSlice
}

// NewPipelineGraph builds a PipelineGraph from its nodes and edges, sorting
// edges by From and constructing the adjacency index. Edges must already
// carry a stable Order (their original declaration order) so that the
// stable sort below preserves it as the within-`from` tie-break.
func NewPipelineGraph(name, goal string, attrs map[string]AttributeValue, nodes map[string]*PipelineNode, edges []*PipelineEdge) *PipelineGraph {
	sorted := make([]*PipelineEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].From < sorted[j].From
	})

	adj := make(map[string]adjSlice)
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].From == sorted[i].From {
			j++
		}
		adj[sorted[i].From] = adjSlice{start: i, count: j - i}
		i = j
	}

	if attrs == nil {
		attrs = map[string]AttributeValue{}
	}
	if nodes == nil {
		nodes = map[string]*PipelineNode{}
	}

	return &PipelineGraph{
		Name:      name,
		Goal:      goal,
		Attrs:     attrs,
		nodes:     nodes,
		edges:     sorted,
		adjacency: adj,
	}
}

// Node returns the node with id, if any.
func (g *PipelineGraph) Node(id string) (*PipelineNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the graph's node map. Callers must not mutate it; the graph
// is immutable after initialization.
func (g *PipelineGraph) Nodes() map[string]*PipelineNode {
	return g.nodes
}

// NodeIDs returns all node IDs in lexicographic order, for deterministic
// iteration (e.g. BFS reachability in the validator).
func (g *PipelineGraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Outgoing returns the contiguous slice of edges leaving nodeID, in sorted
// order. The returned slice must not be mutated by callers.
func (g *PipelineGraph) Outgoing(nodeID string) []*PipelineEdge {
	s, ok := g.adjacency[nodeID]
	if !ok {
		return nil
	}
	return g.edges[s.start : s.start+s.count]
}

// AllEdges returns every edge in the graph, in sorted (From, declaration)
// order.
func (g *PipelineGraph) AllEdges() []*PipelineEdge {
	return g.edges
}

// StartNodeID finds the unique start node: shape Mdiamond, or the literal
// id "start"/"Start". Returns ("", false) if zero or more than one
// candidate exists.
func (g *PipelineGraph) StartNodeID() (string, bool) {
	var candidates []string
	for id, n := range g.nodes {
		if n.Shape == "Mdiamond" || id == "start" || id == "Start" {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0], true
}

// StartNodeIDs returns every node id that qualifies as a start candidate,
// used by the validator to report "zero or more than one" precisely.
func (g *PipelineGraph) StartNodeIDs() []string {
	var candidates []string
	for id, n := range g.nodes {
		if n.Shape == "Mdiamond" || id == "start" || id == "Start" {
			candidates = append(candidates, id)
		}
	}
	sort.Strings(candidates)
	return candidates
}

// IsTerminal reports whether n is a terminal (exit) node: shape Msquare, or
// id exit/end/done.
func IsTerminal(n *PipelineNode) bool {
	if n == nil {
		return false
	}
	if n.Shape == "Msquare" {
		return true
	}
	switch n.ID {
	case "exit", "end", "done":
		return true
	}
	return false
}

// TerminalNodeIDs returns every node id that qualifies as a terminal node.
func (g *PipelineGraph) TerminalNodeIDs() []string {
	var out []string
	for id, n := range g.nodes {
		if IsTerminal(n) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// HasClass reports whether n's Classes list contains class.
func HasClass(n *PipelineNode, class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// SplitClasses splits a space-separated `class` attribute value into its
// component class names.
func SplitClasses(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
