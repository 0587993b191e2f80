// Package style implements the CSS-like stylesheet engine: per-node LLM
// configuration (llm_model, llm_provider, reasoning_effort) driven by
// `*`/`.class`/`#id` selectors and specificity. Fields set explicitly on a
// node are locked; everything else is overwritten in ascending specificity
// order so the most specific matching rule wins.
package style

import (
	"sort"
	"strings"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/model"
)

// recognisedProperties are the only declaration names Apply acts on;
// anything else is parsed but silently ignored.
var recognisedProperties = map[string]bool{
	"llm_model":        true,
	"llm_provider":     true,
	"reasoning_effort": true,
}

// SelectorKind identifies which of the three selector forms a Rule uses.
type SelectorKind int

const (
	SelectorUniversal SelectorKind = iota
	SelectorClass
	SelectorID
)

// Specificity returns the selector's weight: `*`=0, `.class`=1, `#id`=2.
func (k SelectorKind) Specificity() int {
	switch k {
	case SelectorClass:
		return 1
	case SelectorID:
		return 2
	default:
		return 0
	}
}

// Rule is one parsed stylesheet rule.
type Rule struct {
	Kind  SelectorKind
	Name  string // class or id name; empty for universal
	Decls map[string]string
	Order int // declaration order, the tiebreak within equal specificity
}

// Stylesheet is a parsed sequence of rules. A stylesheet must contain at
// least one rule.
type Stylesheet struct {
	Rules []Rule
}

// Parse parses stylesheet source text.
func Parse(src string) (*Stylesheet, error) {
	cleaned, err := stripComments(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: cleaned}
	var rules []Rule
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		rule, err := p.parseRule(len(rules))
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, apperr.ValidationError("stylesheet must contain at least one rule")
	}
	return &Stylesheet{Rules: rules}, nil
}

type parser struct {
	src []byte
	i   int
}

func (p *parser) eof() bool { return p.i >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

func (p *parser) parseRule(order int) (Rule, error) {
	p.skipSpace()
	if p.eof() {
		return Rule{}, apperr.ValidationError("unexpected end of stylesheet, expected selector")
	}

	var kind SelectorKind
	var name string
	switch p.src[p.i] {
	case '*':
		kind = SelectorUniversal
		p.i++
	case '.':
		kind = SelectorClass
		p.i++
		n, ok := p.readIdent()
		if !ok {
			return Rule{}, apperr.ValidationError("expected class name after '.'")
		}
		name = n
	case '#':
		kind = SelectorID
		p.i++
		n, ok := p.readIdent()
		if !ok {
			return Rule{}, apperr.ValidationError("expected id name after '#'")
		}
		name = n
	default:
		return Rule{}, apperr.ValidationError("expected selector ('*', '.class', or '#id')")
	}

	p.skipSpace()
	if p.eof() || p.src[p.i] != '{' {
		return Rule{}, apperr.ValidationError("expected '{' after selector")
	}
	p.i++

	decls := map[string]string{}
	for {
		p.skipSpace()
		if p.eof() {
			return Rule{}, apperr.ValidationError("unterminated rule, expected '}'")
		}
		if p.src[p.i] == '}' {
			p.i++
			break
		}
		if p.src[p.i] == ';' {
			p.i++
			continue
		}
		key, ok := p.readIdent()
		if !ok {
			return Rule{}, apperr.ValidationError("expected declaration property name")
		}
		p.skipSpace()
		if p.eof() || p.src[p.i] != ':' {
			return Rule{}, apperr.ValidationError("expected ':' after property name")
		}
		p.i++
		start := p.i
		for !p.eof() && p.src[p.i] != ';' && p.src[p.i] != '}' {
			p.i++
		}
		value := strings.TrimSpace(string(p.src[start:p.i]))
		// A value wrapped in one matching pair of quotes is stored unquoted.
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		decls[key] = value
	}

	return Rule{Kind: kind, Name: name, Decls: decls, Order: order}, nil
}

func (p *parser) readIdent() (string, bool) {
	p.skipSpace()
	start := p.i
	for !p.eof() {
		c := p.src[p.i]
		if c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			p.i++
			continue
		}
		break
	}
	if p.i == start {
		return "", false
	}
	return string(p.src[start:p.i]), true
}

func stripComments(src string) ([]byte, error) {
	b := []byte(src)
	out := make([]byte, len(b))
	copy(out, b)
	i := 0
	for i < len(out) {
		c := out[i]
		switch {
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			j := i
			for j < len(out) && out[j] != '\n' {
				out[j] = ' '
				j++
			}
			i = j
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			j := i
			closed := false
			for j < len(out) {
				if out[j] == '*' && j+1 < len(out) && out[j+1] == '/' {
					out[j] = ' '
					out[j+1] = ' '
					j += 2
					closed = true
					break
				}
				if out[j] != '\n' {
					out[j] = ' '
				}
				j++
			}
			if !closed {
				return nil, apperr.ValidationError("unterminated block comment in stylesheet")
			}
			i = j
		default:
			i++
		}
	}
	return out, nil
}

// matches reports whether rule applies to node n.
func (r Rule) matches(n *model.PipelineNode) bool {
	switch r.Kind {
	case SelectorUniversal:
		return true
	case SelectorClass:
		return model.HasClass(n, r.Name)
	case SelectorID:
		return n.ID == r.Name
	default:
		return false
	}
}

// Apply applies ss to every node in g:
//  1. Snapshot which of llm_model/llm_provider/reasoning_effort were
//     explicitly set on the node before any stylesheet runs — those are
//     locked and never overwritten.
//  2. Collect matching rules, sort ascending by specificity (ties broken by
//     stylesheet declaration order), and apply declarations in that order,
//     so higher-specificity rules win on unlocked fields.
func Apply(ss *Stylesheet, g *model.PipelineGraph) {
	if ss == nil {
		return
	}
	for _, id := range g.NodeIDs() {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		applyToNode(ss, n)
	}
}

func applyToNode(ss *Stylesheet, n *model.PipelineNode) {
	locked := map[string]bool{
		"llm_model":        n.LLMModel != "",
		"llm_provider":     n.LLMProvider != "",
		"reasoning_effort": n.ReasoningEffort != "",
	}

	var matching []Rule
	for _, r := range ss.Rules {
		if r.matches(n) {
			matching = append(matching, r)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		si, sj := matching[i].Kind.Specificity(), matching[j].Kind.Specificity()
		if si != sj {
			return si < sj
		}
		return matching[i].Order < matching[j].Order
	})

	for _, r := range matching {
		for prop, val := range r.Decls {
			if !recognisedProperties[prop] || locked[prop] {
				continue
			}
			switch prop {
			case "llm_model":
				n.LLMModel = val
			case "llm_provider":
				n.LLMProvider = val
			case "reasoning_effort":
				n.ReasoningEffort = val
			}
		}
	}
}
