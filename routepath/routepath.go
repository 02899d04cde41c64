package routepath

import (
	"fmt"
	"strings"
)

// TransformerFunc converts a component's or parameter's captured string into
// a typed value. It returns (nil, false) when the string cannot be
// transformed, which the matcher treats as a failed match (not an error).
// See GLOSSARY "Transformer".
type TransformerFunc func(string) (interface{}, bool)

// TransformerRegistry maps a transformer name to its host-registered
// TransformerFunc. A RoutePath referencing a name absent from the registry
// at match time fails with MissingTransformerError, a 500-class condition
// per spec §4.3.
type TransformerRegistry map[string]TransformerFunc

// MissingTransformerError is returned by Match when a Component or
// ParameterCondition names a transformer that reg does not contain.
type MissingTransformerError struct {
	Name string
}

func (e *MissingTransformerError) Error() string {
	return fmt.Sprintf("routepath: no transformer registered for %q", e.Name)
}

// RoutePath is an immutable, parsed route-pattern grammar value, built only
// by Parse. See spec §3 RoutePathConditions and §4.3.
type RoutePath struct {
	Components []*Component
}

// String returns p's canonical DSL serialization. Re-parsing it yields a
// RoutePath equal in meaning to p, satisfying the idempotent parse/serialize
// property in spec §8.
func (p *RoutePath) String() string {
	if len(p.Components) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, c := range p.Components {
		b.WriteByte('/')
		b.WriteString(c.String())
	}
	return b.String()
}

// Bindings is the result of a successful Match: captured path-component
// identifiers and transformed query-parameter values. See spec §4.3 step 3.
type Bindings struct {
	// Identifiers maps a component's ":ident" (or bare capturing "*"/"**"
	// with an identifier) binding name to its transformed-or-raw value.
	Identifiers map[string]interface{}

	// Params maps a query parameter name to its sequence of transformed
	// values, present only for parameter conditions that had a
	// transformer (per spec §4.3 step 3).
	Params map[string][]interface{}
}

// newBindings returns an empty, ready-to-populate Bindings.
func newBindings() *Bindings {
	return &Bindings{
		Identifiers: map[string]interface{}{},
		Params:      map[string][]interface{}{},
	}
}

// Match attempts to match path (already split on "/" and percent-decoded)
// and query (a query-parameter-name to ordered-values mapping) against p,
// resolving named transformers through reg. It returns (nil, nil) on a plain
// match failure, and a non-nil error only for a MissingTransformerError
// (spec §4.3's "missing registered transformer ... is a 500-class
// condition"). Match is a pure function of its arguments, satisfying the
// determinism property in spec §8.
func (p *RoutePath) Match(path []string, query map[string][]string, reg TransformerRegistry) (*Bindings, error) {
	b := newBindings()
	k := len(path)
	idx := 0

	for _, c := range p.Components {
		var candidate string
		hereafter := c.Kind == KindAnythingHereafter

		if hereafter {
			candidate = strings.Join(path[idx:], "/")
		} else {
			if idx >= k {
				return nil, nil
			}
			candidate = path[idx]
		}

		ok, err := c.evalCondition(candidate)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		value := interface{}(candidate)
		if c.Transformer != "" {
			fn, found := reg[c.Transformer]
			if !found {
				return nil, &MissingTransformerError{Name: c.Transformer}
			}
			tv, ok := fn(candidate)
			if !ok {
				return nil, nil
			}
			value = tv
		}

		if c.Identifier != "" {
			b.Identifiers[c.Identifier] = value
		}

		switch err := matchParamConditions(c, query, reg, b); err {
		case nil:
		case errParamMismatch:
			return nil, nil
		default:
			return nil, err
		}

		if hereafter {
			idx = k
		} else {
			idx++
		}
	}

	if idx != k {
		return nil, nil
	}

	return b, nil
}

// matchParamConditions evaluates every (param, cond) pair on c against
// query, per spec §4.3 step 1's final bullet. A plain mismatch is reported
// as the errParamMismatch sentinel error; a missing transformer is reported
// as a *MissingTransformerError.
func matchParamConditions(c *Component, query map[string][]string, reg TransformerRegistry, b *Bindings) error {
	for _, name := range c.ParamOrder {
		cond := c.Params[name]
		values := query[name]

		if len(values) == 0 {
			if cond.Optional {
				continue
			}
			return errParamMismatch
		}

		var transformed []interface{}
		for _, v := range values {
			if !cond.satisfies(v) {
				return errParamMismatch
			}
			if cond.Transformer == "" {
				continue
			}
			fn, found := reg[cond.Transformer]
			if !found {
				return &MissingTransformerError{Name: cond.Transformer}
			}
			tv, ok := fn(v)
			if !ok {
				return errParamMismatch
			}
			transformed = append(transformed, tv)
		}

		if cond.Transformer != "" {
			b.Params[name] = transformed
		}
	}
	return nil
}

// errParamMismatch is an internal sentinel distinguishing "this parameter
// condition failed" (a plain non-match) from a MissingTransformerError
// (a genuine error). Match unwraps it back into a (nil, nil) result.
var errParamMismatch = fmt.Errorf("routepath: parameter condition not satisfied")

// evalCondition reports whether candidate satisfies c's path-condition, per
// spec §4.3 step 1.
func (c *Component) evalCondition(candidate string) (bool, error) {
	switch c.Kind {
	case KindFolder:
		return candidate == "", nil
	case KindAnything, KindAnythingHereafter:
		return true, nil
	case KindCondition:
		return c.Group.Eval(candidate), nil
	default:
		return false, nil
	}
}
