// Package swagger serves the OpenAPI description of the analysis API and a
// ReDoc page rendering it.
package swagger

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed openapi.yaml
var OpenAPI []byte

// RedocURL is the ReDoc bundle loaded by the docs page.
const RedocURL = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

// Routes served by Register.
const (
	DocsPath = "/api-docs"
	SpecPath = "/openapi.yaml"
)

var page = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="{{.Bundle}}"></script>
    <script>Redoc.init({{.Spec}}, { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`))

// Option configures the docs page.
type Option func(*docs)

type docs struct {
	Title  string
	Bundle string
	Spec   string
}

// WithTitle sets the page title.
func WithTitle(title string) Option {
	return func(d *docs) {
		if title != "" {
			d.Title = title
		}
	}
}

// WithBundleURL replaces the ReDoc bundle, e.g. with a self-hosted copy.
func WithBundleURL(url string) Option {
	return func(d *docs) {
		if url != "" {
			d.Bundle = url
		}
	}
}

// Register attaches the docs routes to mux:
//
//	GET /api-docs      ReDoc HTML
//	GET /openapi.yaml  embedded OpenAPI document
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) {
	if mux == nil {
		panic("swagger: nil mux")
	}
	d := docs{Title: "abbayes API", Bundle: RedocURL, Spec: SpecPath}
	for _, opt := range opts {
		opt(&d)
	}
	var html bytes.Buffer
	if err := page.Execute(&html, d); err != nil {
		panic("swagger: render docs page: " + err.Error())
	}

	mux.HandleFunc(DocsPath, static("text/html; charset=utf-8", html.Bytes()))
	mux.HandleFunc(SpecPath, static("application/yaml; charset=utf-8", OpenAPI))
}

func static(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}
}
