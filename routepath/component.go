package routepath

import (
	"sort"
	"strings"
)

// ComponentKind is the tagged union described in spec §3: PathComponentPattern.
type ComponentKind uint8

const (
	// KindFolder matches an empty component or a trailing slash.
	KindFolder ComponentKind = iota
	// KindAnything matches any single path component.
	KindAnything
	// KindAnythingHereafter matches the entire remaining path suffix; it
	// must be the last component of a RoutePath.
	KindAnythingHereafter
	// KindCondition matches a component against a PatternGroup boolean
	// expression.
	KindCondition
)

// ParameterCondition describes how a query parameter must be satisfied for
// a component to match. See spec §3 ParameterCondition.
type ParameterCondition struct {
	Optional     bool
	Alternatives []*PatternGroup
	Transformer  string
}

func (pc *ParameterCondition) String() string {
	var b strings.Builder
	if pc.Optional {
		b.WriteByte('?')
	}
	if len(pc.Alternatives) > 0 {
		b.WriteByte('[')
		for i, alt := range pc.Alternatives {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('{')
			b.WriteString(alt.String())
			b.WriteByte('}')
		}
		b.WriteByte(']')
	}
	if pc.Transformer != "" {
		b.WriteByte('<')
		b.WriteString(pc.Transformer)
		b.WriteByte('>')
	}
	return b.String()
}

// satisfies reports whether value satisfies at least one alternative. A
// condition with no alternatives accepts every value.
func (pc *ParameterCondition) satisfies(value string) bool {
	for _, alt := range pc.Alternatives {
		if alt.Eval(value) {
			return true
		}
	}
	return len(pc.Alternatives) == 0
}

// Component is one "/"-delimited segment of a RoutePath, plus its optional
// identifier, value transformer, and query-parameter conditions. See spec
// §3 RoutePathConditions.
type Component struct {
	Kind ComponentKind

	// Group holds the PatternGroup for KindCondition components; nil
	// otherwise.
	Group *PatternGroup

	// Identifier is the binding name captured for this component (from
	// ":IDENT"), or "" if the component captures nothing.
	Identifier string

	// Transformer is the registered transformer name applied to this
	// component's matched value, or "".
	Transformer string

	// Params maps query-parameter name to its condition. ParamOrder
	// preserves source/insertion order for canonical serialization.
	Params     map[string]*ParameterCondition
	ParamOrder []string
}

func newComponent(kind ComponentKind) *Component {
	return &Component{Kind: kind, Params: map[string]*ParameterCondition{}}
}

func (c *Component) addParam(name string, cond *ParameterCondition) {
	if c.Params == nil {
		c.Params = map[string]*ParameterCondition{}
	}
	c.Params[name] = cond
	c.ParamOrder = append(c.ParamOrder, name)
}

// String returns the component's canonical DSL source text.
func (c *Component) String() string {
	var b strings.Builder

	switch {
	case c.Identifier != "":
		b.WriteByte(':')
		b.WriteString(c.Identifier)
	case c.Kind == KindAnythingHereafter:
		b.WriteString("**")
	case c.Kind == KindAnything && c.Group == nil:
		b.WriteByte('*')
	case c.Kind == KindCondition && c.Group != nil && len(c.Group.terms) == 1 && c.Group.terms[0].leaf != nil && c.Transformer == "" && len(c.Params) == 0:
		// A bare literal/regex pattern with nothing else attached
		// round-trips as the literal itself without braces.
		b.WriteString(c.Group.terms[0].leaf.String())
		return b.String()
	}

	body := c.bodyString()
	if body != "" {
		b.WriteByte('{')
		b.WriteString(body)
		b.WriteByte('}')
	}
	return b.String()
}

func (c *Component) bodyString() string {
	var b strings.Builder
	wrote := false

	if c.Group != nil && !(c.Identifier == "" && c.Kind != KindCondition) {
		if c.Kind == KindCondition {
			b.WriteString(c.Group.String())
			wrote = true
		}
	}

	if c.Transformer != "" {
		b.WriteByte('<')
		b.WriteString(c.Transformer)
		b.WriteByte('>')
		wrote = true
	}

	if len(c.ParamOrder) > 0 {
		b.WriteByte('{')
		for i, name := range c.ParamOrder {
			if i > 0 {
				b.WriteByte(',')
			}
			cond := c.Params[name]
			b.WriteByte('@')
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(cond.String())
		}
		b.WriteByte('}')
		wrote = true
	}

	s := b.String()
	if !wrote {
		return ""
	}
	return s
}

// compareKind orders ComponentKind per the tie-break rule in spec §4.3:
// "Folder < ExactMatch < Regex < Anything < AnythingHereafter."
func compareKind(a, b *Component) int {
	rank := func(c *Component) int {
		switch c.Kind {
		case KindFolder:
			return 0
		case KindCondition:
			if c.Group != nil && c.Group.shape() == shapeSingle && len(c.Group.terms) == 1 && c.Group.terms[0].leaf != nil {
				if c.Group.terms[0].leaf.Kind == PatternExact {
					return 1
				}
				return 2
			}
			return 2
		case KindAnything:
			return 3
		case KindAnythingHereafter:
			return 4
		default:
			return 5
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	return 0
}

// SortComponents sorts a slice of Components per the spec §4.3 tie-break
// rule, for callers building an ordered route table: exact-match routes win
// over wildcard routes at the same position.
func SortComponents(cs []*Component) {
	sort.SliceStable(cs, func(i, j int) bool {
		if r := compareKind(cs[i], cs[j]); r != 0 {
			return r < 0
		}
		if cs[i].Kind == KindCondition && cs[i].Group != nil && cs[j].Group != nil {
			return cs[i].Group.Less(cs[j].Group)
		}
		return false
	})
}
