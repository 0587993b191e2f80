// Package transform runs the pre-execution graph mutations: applying the
// graph's stylesheet (read from the `model_stylesheet` graph attribute)
// and expanding `${var}` placeholders in node prompts.
package transform

import (
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/style"
)

// Step is one named pre-execution transform.
type Step interface {
	Name() string
	Apply(g *model.PipelineGraph) error
}

// Run applies steps in order, stopping at the first error.
func Run(g *model.PipelineGraph, steps []Step) error {
	for _, s := range steps {
		if err := s.Apply(g); err != nil {
			return err
		}
	}
	return nil
}

// DefaultSteps is the standard transform pipeline: stylesheet application
// followed by prompt variable expansion.
func DefaultSteps() []Step {
	return []Step{stylesheetStep{}, promptExpansionStep{}}
}

type stylesheetStep struct{}

func (stylesheetStep) Name() string { return "stylesheet" }

func (stylesheetStep) Apply(g *model.PipelineGraph) error {
	raw, ok := g.Attrs["model_stylesheet"]
	if !ok {
		return nil
	}
	src, ok := raw.Coerce()
	if !ok || strings.TrimSpace(src) == "" {
		return nil
	}
	ss, err := style.Parse(src)
	if err != nil {
		return err
	}
	style.Apply(ss, g)
	return nil
}

type promptExpansionStep struct{}

func (promptExpansionStep) Name() string { return "prompt_expansion" }

func (promptExpansionStep) Apply(g *model.PipelineGraph) error {
	for _, id := range g.NodeIDs() {
		n, ok := g.Node(id)
		if !ok || n.Prompt == "" {
			continue
		}
		n.Prompt = ExpandVars(n.Prompt, g)
	}
	return nil
}

// ExpandVars substitutes every `${key}` occurrence in s with the string
// coercion of the graph-scope attribute `key` (String/Integer/Float/Boolean
// only; Duration values are skipped). Unknown keys are left as the literal
// `${key}`.
func ExpandVars(s string, g *model.PipelineGraph) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])

		end := strings.Index(s[start+2:], "}")
		if end < 0 {
			b.WriteString(s[start:])
			break
		}
		end += start + 2

		key := s[start+2 : end]
		if val, ok := g.Attrs[key]; ok {
			if coerced, ok := val.Coerce(); ok {
				b.WriteString(coerced)
				i = end + 1
				continue
			}
		}
		b.WriteString(s[start : end+1])
		i = end + 1
	}
	return b.String()
}
