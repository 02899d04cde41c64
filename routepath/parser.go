package routepath

import (
	"fmt"
	"strings"
)

// ParseError describes a failure to parse a route registration string.
// Offset is the byte offset of the failure in Input where the parser
// records one, and 0 otherwise.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("routepath: cannot parse %q: %s", e.Input, e.Reason)
}

// Parse parses a route registration string into a RoutePath, following the
// grammar in spec §4.3. The string must begin with "/"; components are
// "/"-separated except inside the four block containers ("{}", "[]", "<>"),
// whose openers/closers must balance before "/" is treated as a separator.
func Parse(s string) (*RoutePath, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, &ParseError{Input: s, Offset: 0, Reason: "route path must start with \"/\""}
	}

	body := s[1:]
	var rawComponents []string
	if body != "" {
		rawComponents = splitTopLevel(body, "/")
	}

	components := make([]*Component, 0, len(rawComponents))
	for i, raw := range rawComponents {
		c, err := parseComponentString(raw)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Input = s
				return nil, pe
			}
			return nil, err
		}
		if c.Kind == KindAnythingHereafter && i != len(rawComponents)-1 {
			return nil, &ParseError{Input: s, Reason: "\"**\" (AnythingHereafter) must be the last component"}
		}
		components = append(components, c)
	}

	return &RoutePath{Components: components}, nil
}

// parseComponentString parses one "/"-delimited component's raw source
// text into a Component.
func parseComponentString(raw string) (*Component, error) {
	if raw == "" {
		return newComponent(KindFolder), nil
	}

	identifier := ""
	literal := ""
	kind := KindCondition
	rest := raw

	switch {
	case strings.HasPrefix(raw, ":"):
		ident, tail := scanIdent(raw[1:])
		if ident == "" {
			return nil, &ParseError{Reason: "expected identifier after \":\""}
		}
		if strings.ContainsAny(ident, `/\`) {
			return nil, &ParseError{Reason: "identifier must not contain \"/\" or \"\\\""}
		}
		identifier = ident
		kind = KindAnything
		rest = tail
	case strings.HasPrefix(raw, "**"):
		kind = KindAnythingHereafter
		rest = raw[2:]
	case strings.HasPrefix(raw, "*"):
		kind = KindAnything
		rest = raw[1:]
	default:
		end := strings.IndexByte(raw, '{')
		if end < 0 {
			end = len(raw)
		}
		literal = raw[:end]
		if strings.ContainsAny(literal, `/\`) {
			return nil, &ParseError{Reason: "exact-match pattern must not contain \"/\" or \"\\\""}
		}
		rest = raw[end:]
	}

	c := newComponent(kind)
	c.Identifier = identifier

	if literal != "" {
		p, err := NewPattern(literal)
		if err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
		c.Kind = KindCondition
		c.Group = newSingleGroup(p)
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return c, nil
	}

	if rest[0] != '{' {
		return nil, &ParseError{Reason: "unexpected trailing input " + strconvQuote(rest)}
	}

	closeIdx, err := findMatchingClose(rest, 0, '{', '}')
	if err != nil {
		return nil, err
	}
	if closeIdx != len(rest)-1 {
		return nil, &ParseError{Reason: "unexpected trailing input after component body"}
	}

	inner := rest[1:closeIdx]
	if err := parseComponentBody(c, inner); err != nil {
		return nil, err
	}
	return c, nil
}

// parseComponentBody parses the contents of a component's "{ ... }" body:
// an optional path-pattern, an optional "<transformer>", and an optional
// "{ @param: cond, ... }" parameter dictionary.
func parseComponentBody(c *Component, inner string) error {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}

	// Path-pattern: everything up to the first top-level '<' or '{'.
	patEnd := len(inner)
	for i := 0; i < len(inner); i++ {
		if inner[i] == '<' || inner[i] == '{' {
			patEnd = i
			break
		}
	}
	patSrc := strings.TrimSpace(inner[:patEnd])
	rest := inner[patEnd:]

	if patSrc != "" {
		switch patSrc {
		case "**":
			c.Kind = KindAnythingHereafter
			c.Group = nil
		case "*":
			c.Kind = KindAnything
			c.Group = nil
		default:
			group, err := parsePatternGroup(patSrc)
			if err != nil {
				return err
			}
			c.Kind = KindCondition
			c.Group = group
		}
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}

	if rest[0] == '<' {
		name, tail, err := scanAngleToken(rest)
		if err != nil {
			return err
		}
		c.Transformer = name
		rest = strings.TrimSpace(tail)
	}

	if rest == "" {
		return nil
	}

	if rest[0] != '{' {
		return &ParseError{Reason: "unexpected trailing input in component body"}
	}
	closeIdx, err := findMatchingClose(rest, 0, '{', '}')
	if err != nil {
		return err
	}
	if closeIdx != len(rest)-1 {
		return &ParseError{Reason: "unexpected trailing input after parameter dictionary"}
	}
	return parseParamDict(c, rest[1:closeIdx])
}

// parseParamDict parses "@name:cond, @name2:cond2, ..." into c.Params.
func parseParamDict(c *Component, s string) error {
	entries := splitTopLevel(s, ",")
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if e[0] != '@' {
			return &ParseError{Reason: "parameter name must start with \"@\""}
		}
		colon := strings.IndexByte(e, ':')
		if colon < 0 {
			return &ParseError{Reason: "missing \":\" in parameter condition"}
		}
		name := strings.TrimSpace(e[1:colon])
		if name == "" {
			return &ParseError{Reason: "empty parameter name"}
		}
		if _, dup := c.Params[name]; dup {
			return &ParseError{Reason: "duplicate parameter key " + strconvQuote(name)}
		}
		cond, err := parseParamCondition(strings.TrimSpace(e[colon+1:]))
		if err != nil {
			return err
		}
		c.addParam(name, cond)
	}
	return nil
}

// parseParamCondition parses "?[{pg},{pg}]<transformer>" (all parts
// optional) into a ParameterCondition.
func parseParamCondition(s string) (*ParameterCondition, error) {
	cond := &ParameterCondition{}

	if strings.HasPrefix(s, "?") {
		cond.Optional = true
		s = s[1:]
	}

	if strings.HasPrefix(s, "[") {
		closeIdx, err := findMatchingClose(s, 0, '[', ']')
		if err != nil {
			return nil, err
		}
		inner := s[1:closeIdx]
		for _, part := range splitTopLevel(inner, ",") {
			part = strings.TrimSpace(part)
			if !strings.HasPrefix(part, "{") || !strings.HasSuffix(part, "}") {
				return nil, &ParseError{Reason: "expected \"{patterngroup}\" in alternatives list"}
			}
			group, err := parsePatternGroup(part[1 : len(part)-1])
			if err != nil {
				return nil, err
			}
			cond.Alternatives = append(cond.Alternatives, group)
		}
		s = s[closeIdx+1:]
	}

	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		name, tail, err := scanAngleToken(s)
		if err != nil {
			return nil, err
		}
		cond.Transformer = name
		s = tail
	}

	if strings.TrimSpace(s) != "" {
		return nil, &ParseError{Reason: "unexpected trailing input in parameter condition"}
	}
	return cond, nil
}

// parsePatternGroup parses "term ((&&|| ) term)*" into a PatternGroup.
func parsePatternGroup(s string) (*PatternGroup, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ParseError{Reason: "empty pattern group"}
	}

	termStrs, ops, err := splitBooleanTerms(s)
	if err != nil {
		return nil, err
	}

	g := &PatternGroup{ops: ops}
	for _, ts := range termStrs {
		ts = strings.TrimSpace(ts)
		if strings.HasPrefix(ts, "(") && strings.HasSuffix(ts, ")") {
			sub, err := parsePatternGroup(ts[1 : len(ts)-1])
			if err != nil {
				return nil, err
			}
			g.terms = append(g.terms, groupTerm{sub: sub})
			continue
		}
		p, err := NewPattern(ts)
		if err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
		g.terms = append(g.terms, groupTerm{leaf: &p})
	}
	return g, nil
}

// scanIdent reads a maximal identifier prefix (letters, digits, '_') from
// s, returning the identifier and the unconsumed remainder.
func scanIdent(s string) (ident, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		isIdentChar := c == '_' ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')
		if !isIdentChar {
			break
		}
		i++
	}
	return s[:i], s[i:]
}

// scanAngleToken parses a leading "<name>" token from s, returning name and
// the remainder.
func scanAngleToken(s string) (name, rest string, err error) {
	closeIdx, err := findMatchingClose(s, 0, '<', '>')
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(s[1:closeIdx]), s[closeIdx+1:], nil
}

// findMatchingClose returns the index within s of the closer matching the
// opener at s[openIdx], accounting for nested occurrences of the same
// container and ignoring other container kinds found inside.
func findMatchingClose(s string, openIdx int, open, close byte) (int, error) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &ParseError{Reason: "missing closing " + string(close)}
}

// splitTopLevel splits s on every top-level occurrence of sep, where
// "top-level" means outside any of "{}", "[]", "<>" nesting.
func splitTopLevel(s string, sep string) []string {
	var out []string
	depth := 0
	start := 0
	sepByte := sep[0]

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[', '<':
			depth++
		case '}', ']', '>':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && s[i] == sepByte && strings.HasPrefix(s[i:], sep) {
			out = append(out, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	out = append(out, s[start:])
	return out
}

// splitBooleanTerms splits a PatternGroup source string on its top-level
// "&&"/"||" operators, respecting parenthesised sub-groups.
func splitBooleanTerms(s string) (terms []string, ops []groupOp, err error) {
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && i+1 < len(s) {
			if s[i] == '&' && s[i+1] == '&' {
				terms = append(terms, s[start:i])
				ops = append(ops, opAnd)
				start = i + 2
				i++
				continue
			}
			if s[i] == '|' && s[i+1] == '|' {
				terms = append(terms, s[start:i])
				ops = append(ops, opOr)
				start = i + 2
				i++
				continue
			}
		}
	}
	terms = append(terms, s[start:])
	return terms, ops, nil
}

func strconvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
