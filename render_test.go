package littlewebserver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestRendererParseAndRender(t *testing.T) {
	dir := t.TempDir()
	writeTempTemplate(t, dir, "greet.html", "<p>hello {{.Name}}</p>")

	r := NewRenderer()
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	buf := &bytes.Buffer{}
	require.NoError(t, r.Render(buf, "greet.html", map[string]interface{}{"Name": "world"}))
	assert.Equal(t, "<p>hello world</p>", buf.String())
}

func TestRendererParseTemplatesWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "partials"), 0o700))
	writeTempTemplate(t, filepath.Join(dir, "partials"), "footer.html", "<footer>{{.Name}}</footer>")

	r := NewRenderer()
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	buf := &bytes.Buffer{}
	require.NoError(t, r.Render(buf, "partials/footer.html", map[string]interface{}{"Name": "co"}))
	assert.Equal(t, "<footer>co</footer>", buf.String())
}

func TestRendererRenderInlineBodySetsContentType(t *testing.T) {
	dir := t.TempDir()
	writeTempTemplate(t, dir, "greet.html", "<p>hello {{.Name}}</p>")

	r := NewRenderer()
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	resp := NewResponse()
	require.NoError(t, r.RenderInlineBody(resp, "greet.html", map[string]interface{}{"Name": "world"}))

	assert.Equal(t, "text/html; charset=utf-8", resp.Headers.First("Content-Type"))
	assert.Equal(t, BodyInline, resp.BodyKind())
}

func TestRendererMinifyCollapsesWhitespace(t *testing.T) {
	dir := t.TempDir()
	writeTempTemplate(t, dir, "page.html", "<html>\n  <body>\n    <p>hi</p>\n  </body>\n</html>")

	r := NewRenderer()
	r.EnableMinify()
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	buf := &bytes.Buffer{}
	require.NoError(t, r.Render(buf, "page.html", nil))
	assert.False(t, strings.Contains(buf.String(), "\n  <body>"), "minified output should not retain source indentation")
}

func TestRendererCustomTemplateFunc(t *testing.T) {
	dir := t.TempDir()
	writeTempTemplate(t, dir, "shout.html", "{{shout .Name}}")

	r := NewRenderer()
	r.SetTemplateFunc("shout", func(s string) string { return strings.ToUpper(s) + "!" })
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	buf := &bytes.Buffer{}
	require.NoError(t, r.Render(buf, "shout.html", map[string]interface{}{"Name": "hi"}))
	assert.Equal(t, "HI!", buf.String())
}

func TestRendererBuiltinFuncs(t *testing.T) {
	dir := t.TempDir()
	writeTempTemplate(t, dir, "builtins.html", "{{strlen .Name}}:{{strcat .Name \"!\"}}")

	r := NewRenderer()
	require.NoError(t, r.ParseTemplates(dir, ".html"))

	buf := &bytes.Buffer{}
	require.NoError(t, r.Render(buf, "builtins.html", map[string]interface{}{"Name": "abc"}))
	assert.Equal(t, "3:abc!", buf.String())
}
