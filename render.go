package littlewebserver

import (
	"bytes"
	"fmt"
	"html/template"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	minify "github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"
)

// Renderer builds text/html Response bodies from html/template templates,
// minifying the output before it is handed to SetInlineBody. It is a
// convenience layer, not part of the core request/response pipeline (a
// RouteController is free to build bodies however it likes). Grounded on the
// teacher's renderer.go/minifier.go, retargeted from Air's file-root
// template loader onto the Response body API of spec §3.
type Renderer struct {
	template        *template.Template
	templateFuncMap template.FuncMap
	minifier        *minify.M
	minified        bool
}

// NewRenderer returns a Renderer with the teacher's default template
// func map (strlen/strcat/substr/timefmt).
func NewRenderer() *Renderer {
	return &Renderer{
		template: template.New("template"),
		templateFuncMap: template.FuncMap{
			"strlen":  rendererStrlen,
			"strcat":  rendererStrcat,
			"substr":  rendererSubstr,
			"timefmt": rendererTimefmt,
		},
	}
}

// SetTemplateFunc registers f under name in the template function map. It
// must be called before ParseTemplates.
func (r *Renderer) SetTemplateFunc(name string, f interface{}) {
	r.templateFuncMap[name] = f
}

// EnableMinify turns on HTML minification of rendered output via
// tdewolff/minify, following the teacher's TemplateMinified option.
func (r *Renderer) EnableMinify() {
	r.minified = true
	r.minifier = minify.New()
	r.minifier.Add("text/html", &minhtml.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
	})
}

// ParseTemplates parses every file under root whose extension matches ext
// (e.g. ".html") into named templates, walking subdirectories the same way
// as the teacher's renderer.parseTemplates, naming each template by its
// root-relative, slash-separated path.
func (r *Renderer) ParseTemplates(root, ext string) error {
	root = filepath.Clean(root)

	t := template.New("template").Funcs(r.templateFuncMap)

	var filenames []string
	werr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ext {
			filenames = append(filenames, path)
		}
		return nil
	})
	if werr != nil {
		return werr
	}

	start := len(root) + 1
	if root == "." {
		start = 0
	}

	for _, filename := range filenames {
		b, err := ioutil.ReadFile(filename)
		if err != nil {
			return err
		}

		if r.minified && r.minifier != nil {
			buf := &bytes.Buffer{}
			if err := r.minifier.Minify("text/html", buf, bytes.NewReader(b)); err != nil {
				return err
			}
			b = buf.Bytes()
		}

		name := filepath.ToSlash(filename[start:])
		if _, err := t.New(name).Parse(string(b)); err != nil {
			return err
		}
	}

	r.template = t
	return nil
}

// Render executes the named template against data, writing the result to
// buf. It applies no minification of its own, but when EnableMinify was
// called before ParseTemplates the template sources were minified as they
// were parsed, and the output reflects those minified sources.
func (r *Renderer) Render(buf *bytes.Buffer, templateName string, data map[string]interface{}) error {
	return r.template.ExecuteTemplate(buf, templateName, data)
}

// RenderInlineBody executes templateName against data, minifies the result
// if EnableMinify was called, and sets it as resp's inline body with a
// "text/html; charset=utf-8" Content-Type, per spec §3 Response.
func (r *Renderer) RenderInlineBody(resp *Response, templateName string, data map[string]interface{}) error {
	buf := &bytes.Buffer{}
	if err := r.template.ExecuteTemplate(buf, templateName, data); err != nil {
		return err
	}

	body := buf.Bytes()
	if r.minified && r.minifier != nil {
		minified := &bytes.Buffer{}
		if err := r.minifier.Minify("text/html", minified, bytes.NewReader(body)); err != nil {
			return err
		}
		body = minified.Bytes()
	}

	resp.SetInlineBody(body)
	resp.Headers.Set("Content-Type", "text/html; charset=utf-8")
	return nil
}

func rendererStrlen(s string) int {
	return len([]rune(s))
}

func rendererStrcat(s string, ss ...string) string {
	for i := range ss {
		s = fmt.Sprintf("%s%s", s, ss[i])
	}
	return s
}

func rendererSubstr(s string, i, j int) string {
	rs := []rune(s)
	return string(rs[i:j])
}

func rendererTimefmt(t time.Time, layout string) string {
	return t.Format(layout)
}
