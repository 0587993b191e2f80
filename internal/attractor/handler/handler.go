// Package handler defines the node handler contract and the registry that
// resolves a node to its handler type: explicit node_type first, then the
// fixed shape table, then the codergen default.
package handler

import (
	"context"
	"sync"

	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
)

// Handler is the capability every node executor implements. The engine
// promises node is a valid graph node, rc is the live context at call
// time, and g is immutable; the handler returns within a bounded time of
// its own choosing.
type Handler interface {
	HandlerType() string
	Execute(ctx context.Context, node *model.PipelineNode, rc *runtime.Context, g *model.PipelineGraph) (runtime.Outcome, error)
}

// Registry is a thread-safe type->Handler map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds or replaces the handler for its own HandlerType().
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.HandlerType()] = h
}

func (r *Registry) Get(handlerType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerType]
	return h, ok
}

func (r *Registry) Has(handlerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[handlerType]
	return ok
}

// shapeTable is the fixed shape->handler-type mapping.
var shapeTable = map[string]string{
	"Mdiamond":      "start",
	"Msquare":       "exit",
	"box":           "codergen",
	"hexagon":       "wait.human",
	"diamond":       "conditional",
	"component":     "parallel",
	"tripleoctagon": "parallel.fan_in",
	"parallelogram": "tool",
	"house":         "stack.manager_loop",
}

// ResolveType implements the 3-step handler-type resolution cascade:
//  1. node.node_type, with "conditional"+prompt coerced to "codergen".
//  2. the shape table, same coercion applied.
//  3. the "codergen" default.
func ResolveType(n *model.PipelineNode) string {
	if n.NodeType != "" {
		if n.NodeType == "conditional" && n.Prompt != "" {
			return "codergen"
		}
		return n.NodeType
	}
	if t, ok := shapeTable[n.Shape]; ok {
		if t == "conditional" && n.Prompt != "" {
			return "codergen"
		}
		return t
	}
	return "codergen"
}

// Resolve resolves n's handler type and looks it up in r.
func (r *Registry) Resolve(n *model.PipelineNode) (Handler, string, bool) {
	t := ResolveType(n)
	h, ok := r.Get(t)
	return h, t, ok
}
