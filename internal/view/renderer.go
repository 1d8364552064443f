// Package view renders HTML pages from templates embedded in the binary.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed templates
var templateFS embed.FS

// Page is the data handed to a template.
type Page struct {
	Locals
	Title string
	Data  any
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format("Jan 2, 2006 15:04") },
	"excerpt": func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return strings.TrimSpace(string(r[:n])) + "…"
	},
}

// NewRenderer parses every page under templates/ together with the layouts.
func NewRenderer() (*Renderer, error) {
	root, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	layouts, err := fs.Glob(root, "layouts/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	err = fs.WalkDir(root, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(path, "layouts/") || !strings.HasSuffix(path, ".html") {
			return err
		}
		files := append(append([]string{}, layouts...), path)
		t, err := template.New(path).Funcs(funcs).ParseFS(root, files...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		r.pages[path] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Render writes the named page with status. The request's locals are merged
// into page before execution.
func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	t, ok := v.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("Unknown template")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	page.Locals = LocalsFrom(r.Context())
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", page); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Template execution error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
