package dot

import (
	"strconv"

	"github.com/attractor-run/attractor/internal/attractor/model"
)

// Build lowers a parsed model.DotGraph into the typed model.PipelineGraph
// the engine walks. Default-layering (graph defaults, then subgraph
// defaults, then explicit attrs) has already happened during parsing via
// the scope chain, so NodeDef.Attrs/EdgeDef.Attrs here are already fully
// resolved; Build's job is typed-field extraction plus constructing the
// sorted-adjacency PipelineGraph.
func Build(dg *model.DotGraph) (*model.PipelineGraph, error) {
	nodes := make(map[string]*model.PipelineNode, len(dg.Nodes))
	for id, nd := range dg.Nodes {
		pn, err := buildNode(nd)
		if err != nil {
			return nil, err
		}
		nodes[id] = pn
	}

	edges := make([]*model.PipelineEdge, 0, len(dg.Edges))
	for _, ed := range dg.Edges {
		edges = append(edges, buildEdge(ed))
	}

	goal, _ := dg.Attrs["goal"].Coerce()
	return model.NewPipelineGraph(dg.Name, goal, dg.Attrs, nodes, edges), nil
}

func buildNode(nd *model.NodeDef) (*model.PipelineNode, error) {
	pn := &model.PipelineNode{
		ID:       nd.ID,
		Shape:    attrString(nd.Attrs, "shape", "box"),
		Label:    attrString(nd.Attrs, "label", nd.ID),
		RawAttrs: nd.Attrs,
	}
	pn.NodeType = attrString(nd.Attrs, "node_type", "")
	pn.Prompt = attrString(nd.Attrs, "prompt", "")
	pn.RetryTarget = attrString(nd.Attrs, "retry_target", "")
	pn.FallbackRetryTarget = attrString(nd.Attrs, "fallback_retry_target", "")
	pn.Fidelity = attrString(nd.Attrs, "fidelity", "")
	pn.ThreadID = attrString(nd.Attrs, "thread_id", "")
	pn.LLMModel = attrString(nd.Attrs, "llm_model", "")
	pn.LLMProvider = attrString(nd.Attrs, "llm_provider", "")
	pn.ReasoningEffort = attrString(nd.Attrs, "reasoning_effort", "")
	pn.Classes = model.SplitClasses(attrString(nd.Attrs, "class", ""))

	pn.GoalGate = attrBool(nd.Attrs, "goal_gate", false)
	pn.AutoStatus = attrBool(nd.Attrs, "auto_status", true)
	pn.AllowPartial = attrBool(nd.Attrs, "allow_partial", false)

	pn.MaxRetries = uint(attrInt(nd.Attrs, "max_retries", 0))

	if raw, ok := nd.Attrs["timeout"]; ok {
		if d, ok := raw.AsDuration(); ok {
			pn.Timeout = &d
		} else if s, ok := raw.Coerce(); ok && s != "" {
			if parsed, err := model.ParseDuration(s); err == nil {
				pn.Timeout = &parsed
			}
		}
	}

	return pn, nil
}

func buildEdge(ed *model.EdgeDef) *model.PipelineEdge {
	return &model.PipelineEdge{
		From:        ed.From,
		To:          ed.To,
		Label:       attrString(ed.Attrs, "label", ""),
		Condition:   attrString(ed.Attrs, "condition", ""),
		Weight:      int32(attrInt(ed.Attrs, "weight", 0)),
		Fidelity:    attrString(ed.Attrs, "fidelity", ""),
		ThreadID:    attrString(ed.Attrs, "thread_id", ""),
		LoopRestart: attrBool(ed.Attrs, "loop_restart", false),
		Order:       ed.Order,
	}
}

func attrString(attrs map[string]model.AttributeValue, key, def string) string {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	s, ok := v.Coerce()
	if !ok {
		return def
	}
	return s
}

func attrBool(attrs map[string]model.AttributeValue, key string, def bool) bool {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	if b, ok := v.AsBoolean(); ok {
		return b
	}
	if s, ok := v.Coerce(); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return def
}

func attrInt(attrs map[string]model.AttributeValue, key string, def int64) int64 {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	if n, ok := v.AsInteger(); ok {
		return n
	}
	if s, ok := v.Coerce(); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// ParseAndBuild is the convenience entrypoint combining Parse and Build,
// used by the engine's parse phase.
func ParseAndBuild(src []byte) (*model.PipelineGraph, error) {
	dg, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Build(dg)
}
