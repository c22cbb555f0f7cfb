package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gaspardpetit/chatfront/internal/session"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Renderer turns a page name and its data into an HTML response.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, name string, data PageData) error
}

// PageData is passed to every page.
type PageData struct {
	Title   string
	Email   string
	Flashes []session.Flash
	Data    any
}

// TemplateRenderer renders the embedded html/template pages.
type TemplateRenderer struct {
	base  *template.Template
	pages fs.FS
}

// NewTemplateRenderer parses the shared layout. Page templates are parsed
// into a clone of the layout at render time so their "content" blocks do
// not collide.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	base, err := template.New("").Funcs(template.FuncMap{
		"flashClass": flashClass,
	}).ParseFS(templatesFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}
	return &TemplateRenderer{base: base, pages: templatesFS}, nil
}

// Render implements Renderer.
func (t *TemplateRenderer) Render(w http.ResponseWriter, _ *http.Request, name string, data PageData) error {
	tmpl, err := t.base.Clone()
	if err != nil {
		return fmt.Errorf("clone template: %w", err)
	}
	path := "templates/" + name
	if _, err := tmpl.ParseFS(t.pages, path); err != nil {
		return fmt.Errorf("parse page template %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("execute page template %s: %w", path, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

// pageBuffer holds a rendered response until the session has been saved.
type pageBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newPageBuffer() *pageBuffer {
	return &pageBuffer{header: http.Header{}}
}

func (b *pageBuffer) Header() http.Header { return b.header }

func (b *pageBuffer) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *pageBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *pageBuffer) writeTo(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	w.WriteHeader(b.status)
	_, _ = b.body.WriteTo(w)
}

func flashClass(kind string) string {
	switch kind {
	case "success", "danger", "warning":
		return "flash-" + kind
	default:
		return "flash-info"
	}
}

// StaticHandler serves the embedded browser assets under prefix.
func StaticHandler(prefix string) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix(prefix, http.FileServer(http.FS(sub)))
}
