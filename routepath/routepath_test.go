package routepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitPath(p string) []string {
	if p == "/" {
		return nil
	}
	out := []string{}
	cur := ""
	for _, r := range p[1:] {
		if r == '/' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	out = append(out, cur)
	return out
}

func TestParseTable(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"root", "/", false},
		{"literal", "/foo/bar", false},
		{"identifier", "/greet/:name", false},
		{"anything", "/files/*", false},
		{"anything-hereafter", "/assets/**", false},
		{"regex-literal", "/items/^[0-9]+$", false},
		{"transformer", "/items/:id{<int>}", false},
		{"param-dict", "/search{{@q:[{^.+$}]}}", false},
		{"missing-leading-slash", "foo/bar", true},
		{"hereafter-not-last", "/**/bar", true},
		{"unterminated-brace", "/foo{bar", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.pattern)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
		})
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	patterns := []string{
		"/",
		"/foo/bar",
		"/greet/:name",
		"/files/*",
		"/assets/**",
		"/items/^[0-9]+$",
	}

	for _, src := range patterns {
		p, err := Parse(src)
		require.NoError(t, err, src)

		again, err := Parse(p.String())
		require.NoError(t, err, p.String())

		assert.Equal(t, p.String(), again.String(), "re-parsing %q should be idempotent", src)
	}
}

func TestMatchLiteral(t *testing.T) {
	p, err := Parse("/foo/bar")
	require.NoError(t, err)

	b, err := p.Match(splitPath("/foo/bar"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, b)

	b, err = p.Match(splitPath("/foo/baz"), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMatchIdentifierCapture(t *testing.T) {
	p, err := Parse("/greet/:name")
	require.NoError(t, err)

	b, err := p.Match(splitPath("/greet/world"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "world", b.Identifiers["name"])
}

func TestMatchAnythingHereafter(t *testing.T) {
	p, err := Parse("/assets/**")
	require.NoError(t, err)

	b, err := p.Match(splitPath("/assets/css/site.css"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestMatchTransformer(t *testing.T) {
	p, err := Parse("/items/:id{<int>}")
	require.NoError(t, err)

	reg := TransformerRegistry{
		"int": func(s string) (interface{}, bool) {
			n := 0
			for _, c := range s {
				if c < '0' || c > '9' {
					return nil, false
				}
				n = n*10 + int(c-'0')
			}
			return n, true
		},
	}

	b, err := p.Match(splitPath("/items/42"), nil, reg)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 42, b.Identifiers["id"])

	b, err = p.Match(splitPath("/items/abc"), nil, reg)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMatchMissingTransformerIsError(t *testing.T) {
	p, err := Parse("/items/:id{<int>}")
	require.NoError(t, err)

	b, err := p.Match(splitPath("/items/42"), nil, TransformerRegistry{})
	assert.Nil(t, b)
	var missing *MissingTransformerError
	assert.ErrorAs(t, err, &missing)
}

func TestMatchQueryParamCondition(t *testing.T) {
	p, err := Parse("/search{{@q:[{^.+$}]}}")
	require.NoError(t, err)

	b, err := p.Match(splitPath("/search"), map[string][]string{"q": {"hello"}}, nil)
	require.NoError(t, err)
	assert.NotNil(t, b)

	b, err = p.Match(splitPath("/search"), map[string][]string{}, nil)
	require.NoError(t, err)
	assert.Nil(t, b, "required query parameter missing should not match")
}

func TestMatchIsDeterministic(t *testing.T) {
	p, err := Parse("/greet/:name")
	require.NoError(t, err)

	path := splitPath("/greet/world")
	first, err := p.Match(path, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := p.Match(path, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Identifiers, again.Identifiers)
	}
}

func TestSortComponentsTieBreak(t *testing.T) {
	lit, err := Parse("/foo")
	require.NoError(t, err)
	wild, err := Parse("/*")
	require.NoError(t, err)
	hereafter, err := Parse("/**")
	require.NoError(t, err)

	cs := []*Component{hereafter.Components[0], wild.Components[0], lit.Components[0]}
	SortComponents(cs)

	assert.Equal(t, KindCondition, cs[0].Kind)
	assert.Equal(t, KindAnything, cs[1].Kind)
	assert.Equal(t, KindAnythingHereafter, cs[2].Kind)
}
