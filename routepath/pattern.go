// Package routepath implements the route-pattern DSL: a small grammar for
// describing a "/"-delimited request path plus per-component and
// per-query-parameter match conditions, grounded on the teacher's radix
// router (router.go) for its overall shape but re-expressed as the sum
// types the specification calls for instead of a trie.
package routepath

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternKind discriminates the two leaf pattern forms. See GLOSSARY
// "PathComponentPattern".
type PatternKind uint8

const (
	// PatternExact matches a literal string exactly.
	PatternExact PatternKind = iota
	// PatternRegex matches a compiled ^...$ regular expression.
	PatternRegex
)

// Pattern is a single match leaf: ExactMatch(string) or Regex(compiled). A
// source string that begins with "^" and ends with "$" is parsed as a
// regular expression; otherwise it is literal.
type Pattern struct {
	Kind   PatternKind
	Source string

	compiled *regexp.Regexp
}

// NewPattern compiles src into a Pattern, following the rule in spec §4.3:
// a source beginning with "^" and ending with "$" is a regex.
func NewPattern(src string) (Pattern, error) {
	if len(src) >= 2 && src[0] == '^' && src[len(src)-1] == '$' {
		re, err := regexp.Compile(src)
		if err != nil {
			return Pattern{}, fmt.Errorf("routepath: invalid regex %q: %w", src, err)
		}
		return Pattern{Kind: PatternRegex, Source: src, compiled: re}, nil
	}
	return Pattern{Kind: PatternExact, Source: src}, nil
}

// Match reports whether s satisfies the pattern.
func (p Pattern) Match(s string) bool {
	if p.Kind == PatternRegex {
		return p.compiled.MatchString(s)
	}
	return p.Source == s
}

// String returns the pattern's canonical DSL source text.
func (p Pattern) String() string { return p.Source }

// Less implements the leaf ordering used by the tie-break rule in spec
// §4.3: "lexicographic order," applied after the PatternGroup-shape
// ordering.
func (p Pattern) Less(o Pattern) bool {
	if p.Kind != o.Kind {
		return p.Kind < o.Kind
	}
	return p.Source < o.Source
}

// groupOp is the boolean connective joining two terms of a PatternGroup.
type groupOp uint8

const (
	opNone groupOp = iota
	opAnd
	opOr
)

func (o groupOp) String() string {
	switch o {
	case opAnd:
		return "&&"
	case opOr:
		return "||"
	default:
		return ""
	}
}

// groupTerm is one operand of a PatternGroup: either a Pattern leaf or a
// parenthesised nested PatternGroup.
type groupTerm struct {
	leaf *Pattern
	sub  *PatternGroup
}

func (t groupTerm) String() string {
	if t.leaf != nil {
		return t.leaf.String()
	}
	return "(" + t.sub.String() + ")"
}

func (t groupTerm) eval(s string) bool {
	if t.leaf != nil {
		return t.leaf.Match(s)
	}
	return t.sub.Eval(s)
}

// PatternGroup is a left-associative boolean expression tree over Pattern
// leaves, combined with "&&"/"||". See spec §4.3.
type PatternGroup struct {
	terms []groupTerm
	ops   []groupOp // len(ops) == len(terms)-1
}

// newSingleGroup returns a PatternGroup containing exactly one leaf term.
func newSingleGroup(p Pattern) *PatternGroup {
	return &PatternGroup{terms: []groupTerm{{leaf: &p}}}
}

// Eval evaluates the group's boolean expression against s, left to right
// (the grammar assigns no precedence between "&&" and "||").
func (g *PatternGroup) Eval(s string) bool {
	if g == nil || len(g.terms) == 0 {
		return false
	}
	result := g.terms[0].eval(s)
	for i, op := range g.ops {
		rhs := g.terms[i+1].eval(s)
		switch op {
		case opAnd:
			result = result && rhs
		case opOr:
			result = result || rhs
		}
	}
	return result
}

// shape classifies a PatternGroup for the tie-break rule in spec §4.3:
// "PatternGroup sorts single < and < or."
type groupShape uint8

const (
	shapeSingle groupShape = iota
	shapeAnd
	shapeOr
)

func (g *PatternGroup) shape() groupShape {
	for _, op := range g.ops {
		if op == opOr {
			return shapeOr
		}
	}
	if len(g.ops) > 0 {
		return shapeAnd
	}
	return shapeSingle
}

// Less implements the PatternGroup tie-break ordering: shape first, then
// leaf lexicographic order.
func (g *PatternGroup) Less(o *PatternGroup) bool {
	gs, os := g.shape(), o.shape()
	if gs != os {
		return gs < os
	}
	return g.String() < o.String()
}

// String returns the group's canonical DSL source text.
func (g *PatternGroup) String() string {
	if g == nil || len(g.terms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(g.terms[0].String())
	for i, op := range g.ops {
		b.WriteString(op.String())
		b.WriteString(g.terms[i+1].String())
	}
	return b.String()
}
