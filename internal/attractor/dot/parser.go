// Package dot parses the pipeline DOT subset into a model.DotGraph AST and
// lowers that AST into a typed model.PipelineGraph (see builder.go). Only
// `digraph` is accepted; `strict` and undirected graphs are rejected with
// positioned parse errors.
package dot

import (
	"fmt"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/model"
)

// scope carries the node/edge defaults in effect at a point in the source.
// A child scope starts as a copy of its parent's accumulated defaults, so
// that further node[...]/edge[...] statements inside a subgraph layer on
// top of the outer ones without affecting sibling or later scopes.
type scope struct {
	parent       *scope
	nodeDefaults map[string]model.AttributeValue
	edgeDefaults map[string]model.AttributeValue
	label        string
	nodeIDs      []string
}

// setLabel records this scope's own `label = ...` assignment. Only
// meaningful for a subgraph scope, where the label also yields a derived
// node class.
func (s *scope) setLabel(v string) { s.label = v }

func newScope(parent *scope) *scope {
	s := &scope{
		parent:       parent,
		nodeDefaults: map[string]model.AttributeValue{},
		edgeDefaults: map[string]model.AttributeValue{},
	}
	if parent != nil {
		for k, v := range parent.nodeDefaults {
			s.nodeDefaults[k] = v
		}
		for k, v := range parent.edgeDefaults {
			s.edgeDefaults[k] = v
		}
	}
	return s
}

func (s *scope) recordNode(id string) {
	s.nodeIDs = append(s.nodeIDs, id)
}

type parser struct {
	src  []byte
	orig []byte
	i    int
	dg   *model.DotGraph
}

// Parse parses DOT source into an untyped model.DotGraph. Only `digraph` is
// accepted: `strict` and undirected `graph`/`--` are rejected with a
// structured parse error naming the offending line/column.
func Parse(src []byte) (*model.DotGraph, error) {
	cleaned, err := stripComments(src)
	if err != nil {
		return nil, apperr.ParseError(1, 1, err.Error())
	}
	p := &parser{src: cleaned, orig: src}
	return p.parseDocument()
}

func (p *parser) errAt(i int, format string, args ...interface{}) error {
	line, col := lineCol(p.orig, i)
	return apperr.ParseError(line, col, fmt.Sprintf(format, args...))
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

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// readIdent reads a bareword identifier at the current position (after
// skipping space), without consuming anything if none is present.
func (p *parser) readIdent() (string, int, bool) {
	p.skipSpace()
	start := p.i
	if p.eof() || !isIdentStart(p.src[p.i]) {
		return "", start, false
	}
	p.i++
	for !p.eof() && isIdentCont(p.src[p.i]) {
		p.i++
	}
	return string(p.src[start:p.i]), start, true
}

// readQualifiedKey reads a dotted attribute key such as "style.model".
func (p *parser) readQualifiedKey() (string, int, bool) {
	first, start, ok := p.readIdent()
	if !ok {
		return "", start, false
	}
	key := first
	for !p.eof() && p.src[p.i] == '.' {
		save := p.i
		p.i++
		next, _, ok := p.readIdent()
		if !ok {
			p.i = save
			break
		}
		key = key + "." + next
	}
	return key, start, true
}

func (p *parser) peekByte() byte {
	p.skipSpace()
	if p.eof() {
		return 0
	}
	return p.src[p.i]
}

// consume tries to match literal lit (no leading space skip assumed done by
// caller via peekByte, but this re-skips for convenience).
func (p *parser) consume(lit string) bool {
	p.skipSpace()
	if p.i+len(lit) > len(p.src) {
		return false
	}
	if string(p.src[p.i:p.i+len(lit)]) != lit {
		return false
	}
	p.i += len(lit)
	return true
}

func (p *parser) expect(lit string) error {
	start := p.i
	if !p.consume(lit) {
		return p.errAt(start, "expected %q", lit)
	}
	return nil
}

func (p *parser) readQuotedString() (string, error) {
	start := p.i
	if p.eof() || p.src[p.i] != '"' {
		return "", p.errAt(start, "expected opening quote")
	}
	p.i++
	var out []byte
	for {
		if p.eof() {
			return "", p.errAt(start, "unterminated string")
		}
		c := p.src[p.i]
		if c == '"' {
			p.i++
			return string(out), nil
		}
		if c == '\\' {
			p.i++
			if p.eof() {
				return "", p.errAt(start, "unterminated string")
			}
			e := p.src[p.i]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case '\\':
				out = append(out, '\\')
			case '"':
				out = append(out, '"')
			default:
				out = append(out, '\\', e)
			}
			p.i++
			continue
		}
		out = append(out, c)
		p.i++
	}
}

// parseAttrValue reads one attribute value: a quoted string, or a raw span
// up to the next `,`, `;`, or `]`. Returns the typed value.
func (p *parser) parseAttrValue() (model.AttributeValue, error) {
	p.skipSpace()
	if p.eof() {
		return model.AttributeValue{}, p.errAt(p.i, "expected attribute value")
	}
	if p.src[p.i] == '"' {
		s, err := p.readQuotedString()
		if err != nil {
			return model.AttributeValue{}, err
		}
		return model.ParseAttributeValue(s, true), nil
	}
	start := p.i
	for !p.eof() {
		c := p.src[p.i]
		if c == ',' || c == ';' || c == ']' {
			break
		}
		p.i++
	}
	raw := string(p.src[start:p.i])
	trimmed := trimSpace(raw)
	if trimmed == "" {
		return model.AttributeValue{}, p.errAt(start, "empty attribute value")
	}
	return model.ParseAttributeValue(trimmed, false), nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// parseAttrBlock parses a `[k=v, k=v; k=v]` block. The opening `[` must
// already be the next token.
func (p *parser) parseAttrBlock() (map[string]model.AttributeValue, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	attrs := map[string]model.AttributeValue{}
	for {
		p.skipSpace()
		if p.peekByte() == ']' {
			p.consume("]")
			return attrs, nil
		}
		key, start, ok := p.readQualifiedKey()
		if !ok {
			return nil, p.errAt(start, "expected attribute key")
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		val, err := p.parseAttrValue()
		if err != nil {
			return nil, err
		}
		attrs[key] = val

		p.skipSpace()
		switch p.peekByte() {
		case ',', ';':
			p.i++
			continue
		case ']':
			p.i++
			return attrs, nil
		default:
			return nil, p.errAt(p.i, "expected ',', ';' or ']' in attribute block")
		}
	}
}

func (p *parser) parseDocument() (*model.DotGraph, error) {
	kw, start, ok := p.readIdent()
	if !ok {
		return nil, p.errAt(start, "expected 'digraph'")
	}
	if kw == "strict" {
		return nil, p.errAt(start, "strict graphs are not supported")
	}
	if kw == "graph" {
		return nil, p.errAt(start, "undirected graphs are not supported; use digraph")
	}
	if kw != "digraph" {
		return nil, p.errAt(start, "expected 'digraph', got %q", kw)
	}

	name, _, _ := p.readIdent() // graph name is optional
	p.dg = model.NewDotGraph(name)

	if err := p.expect("{"); err != nil {
		return nil, err
	}
	root := newScope(nil)
	if err := p.parseStatements(root); err != nil {
		return nil, err
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}

	p.dg.NodeDefaults = root.nodeDefaults
	p.dg.EdgeDefaults = root.edgeDefaults
	return p.dg, nil
}

// parseStatements parses statements until (but not consuming) the closing
// `}` of the current block.
func (p *parser) parseStatements(sc *scope) error {
	for {
		p.skipSpace()
		if p.eof() {
			return p.errAt(p.i, "unexpected end of input, expected '}'")
		}
		if p.src[p.i] == '}' {
			return nil
		}
		if p.src[p.i] == ';' {
			p.i++
			continue
		}

		start := p.i
		if p.src[p.i] == '-' {
			if p.consume("--") {
				return p.errAt(start, "undirected edges are not supported")
			}
		}

		tok, tokStart, ok := p.readIdent()
		if !ok {
			return p.errAt(p.i, "expected statement")
		}

		switch tok {
		case "graph":
			attrs, err := p.parseAttrBlock()
			if err != nil {
				return err
			}
			for k, v := range attrs {
				p.dg.Attrs[k] = v
			}
			p.consume(";")
			continue
		case "node":
			attrs, err := p.parseAttrBlock()
			if err != nil {
				return err
			}
			for k, v := range attrs {
				sc.nodeDefaults[k] = v
			}
			p.consume(";")
			continue
		case "edge":
			attrs, err := p.parseAttrBlock()
			if err != nil {
				return err
			}
			for k, v := range attrs {
				sc.edgeDefaults[k] = v
			}
			p.consume(";")
			continue
		case "subgraph":
			if err := p.parseSubgraph(sc, tok); err != nil {
				return err
			}
			continue
		}

		if err := p.parseIdentifierStatement(sc, tok, tokStart); err != nil {
			return err
		}
	}
}

func (p *parser) parseSubgraph(sc *scope, _ string) error {
	name, _, _ := p.readIdent()
	if err := p.expect("{"); err != nil {
		return err
	}
	child := newScope(sc)
	if err := p.parseStatements(child); err != nil {
		return err
	}
	if err := p.expect("}"); err != nil {
		return err
	}
	p.consume(";")

	// Nodes of a nested subgraph also belong to the enclosing one.
	sc.nodeIDs = append(sc.nodeIDs, child.nodeIDs...)

	sd := &model.SubgraphDef{
		Name:         name,
		Label:        child.label,
		NodeDefaults: child.nodeDefaults,
		EdgeDefaults: child.edgeDefaults,
		NodeIDs:      child.nodeIDs,
	}
	p.dg.Subgraphs = append(p.dg.Subgraphs, sd)
	applySubgraphLabelClass(p.dg, sd)
	return nil
}

// parseIdentifierStatement handles `id = value`, an edge chain starting at
// id, or a bare node statement.
func (p *parser) parseIdentifierStatement(sc *scope, tok string, tokStart int) error {
	p.skipSpace()
	switch {
	case p.peekByte() == '=':
		p.i++
		val, err := p.parseGraphAttrValue()
		if err != nil {
			return err
		}
		if tok == "label" && sc.parent != nil {
			if s, ok := val.AsString(); ok {
				sc.setLabel(s)
			} else {
				sc.setLabel(val.String())
			}
		} else {
			p.dg.Attrs[tok] = val
		}
		p.consume(";")
		return nil

	case p.i+1 < len(p.src) && p.src[p.i] == '-' && p.src[p.i+1] == '-':
		return p.errAt(p.i, "undirected edges are not supported")

	case p.i+1 < len(p.src) && p.src[p.i] == '-' && p.src[p.i+1] == '>':
		return p.parseEdgeChain(sc, tok, tokStart)

	default:
		return p.parseNodeStatement(sc, tok)
	}
}

func (p *parser) parseGraphAttrValue() (model.AttributeValue, error) {
	p.skipSpace()
	if !p.eof() && p.src[p.i] == '"' {
		s, err := p.readQuotedString()
		if err != nil {
			return model.AttributeValue{}, err
		}
		return model.ParseAttributeValue(s, true), nil
	}
	start := p.i
	for !p.eof() && p.src[p.i] != ';' && p.src[p.i] != '}' && p.src[p.i] != '\n' {
		p.i++
	}
	raw := trimSpace(string(p.src[start:p.i]))
	if raw == "" {
		return model.AttributeValue{}, p.errAt(start, "expected attribute value")
	}
	return model.ParseAttributeValue(raw, false), nil
}

func (p *parser) parseNodeStatement(sc *scope, id string) error {
	n := p.dg.EnsureNode(id)
	sc.recordNode(id)

	var explicit map[string]model.AttributeValue
	if p.peekByte() == '[' {
		var err error
		explicit, err = p.parseAttrBlock()
		if err != nil {
			return err
		}
	}
	applyDefaultsThenExplicit(n.Attrs, sc.nodeDefaults, explicit)
	p.consume(";")
	return nil
}

func (p *parser) parseEdgeChain(sc *scope, first string, firstStart int) error {
	chain := []string{first}
	p.ensureChainNode(sc, first)

	for {
		if !p.consume("->") {
			break
		}
		if p.i+1 < len(p.src) && p.src[p.i] == '-' && p.src[p.i+1] == '-' {
			return p.errAt(p.i, "undirected edges are not supported")
		}
		next, nextStart, ok := p.readIdent()
		if !ok {
			return p.errAt(nextStart, "expected node identifier after '->'")
		}
		chain = append(chain, next)
		p.ensureChainNode(sc, next)
	}
	if len(chain) < 2 {
		return p.errAt(firstStart, "edge chain requires at least two nodes")
	}

	var explicit map[string]model.AttributeValue
	if p.peekByte() == '[' {
		var err error
		explicit, err = p.parseAttrBlock()
		if err != nil {
			return err
		}
	}
	p.consume(";")

	for i := 0; i < len(chain)-1; i++ {
		e := model.NewEdgeDef(chain[i], chain[i+1], len(p.dg.Edges))
		applyDefaultsThenExplicit(e.Attrs, sc.edgeDefaults, explicit)
		p.dg.Edges = append(p.dg.Edges, e)
	}
	return nil
}

// ensureChainNode registers a chain endpoint, creating the node with the
// scope's inherited node defaults when it was never declared explicitly.
func (p *parser) ensureChainNode(sc *scope, id string) {
	n := p.dg.EnsureNode(id)
	applyDefaultsThenExplicit(n.Attrs, sc.nodeDefaults, nil)
	sc.recordNode(id)
}

// applyDefaultsThenExplicit fills dst with defaults for keys not already
// present, then overwrites with explicit. Explicit always wins, and a
// re-declaration's defaults never clobber an earlier explicit value.
func applyDefaultsThenExplicit(dst, defaults, explicit map[string]model.AttributeValue) {
	for k, v := range defaults {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
	for k, v := range explicit {
		dst[k] = v
	}
}

// applySubgraphLabelClass appends a class synthesized from the subgraph's
// label (lowercased, spaces to hyphens, non-alphanumeric stripped) to every
// node declared inside it, in addition to any explicit `class` attribute.
func applySubgraphLabelClass(dg *model.DotGraph, sd *model.SubgraphDef) {
	if sd.Label == "" {
		return
	}
	derived := deriveClassFromLabel(sd.Label)
	if derived == "" {
		return
	}
	seen := map[string]bool{}
	for _, id := range sd.NodeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, ok := dg.Nodes[id]
		if !ok {
			continue
		}
		existing, _ := n.Attrs["class"].Coerce()
		if existing == "" {
			n.Attrs["class"] = model.StringValue(derived)
		} else if !hasClassWord(existing, derived) {
			n.Attrs["class"] = model.StringValue(existing + " " + derived)
		}
	}
}

func hasClassWord(classAttr, class string) bool {
	for _, c := range model.SplitClasses(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func deriveClassFromLabel(label string) string {
	out := make([]byte, 0, len(label))
	lastHyphen := false
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
			lastHyphen = false
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
			lastHyphen = false
		case c == ' ' || c == '\t' || c == '-' || c == '_':
			if !lastHyphen && len(out) > 0 {
				out = append(out, '-')
				lastHyphen = true
			}
		default:
			// non-alphanumeric, stripped
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
