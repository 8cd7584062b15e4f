package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Raw HTML in descriptions is escaped by goldmark's default renderer.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderMarkdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

var funcs = template.FuncMap{
	"markdown": renderMarkdown,
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

// parseTemplates pairs the layout with every page.
func parseTemplates() (map[string]*template.Template, error) {
	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		name := strings.TrimSuffix(path.Base(p), ".html")
		if name == "layout" {
			continue
		}
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		out[name] = t
	}
	return out, nil
}

type page struct {
	Title    string
	Identity *session.Identity
	Flashes  []auth.Flash
	OAuth    bool
	Data     any
}

// render executes into a buffer first so a template error still
// yields a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	t, ok := h.templates[name]
	if !ok {
		h.serverError(w, r, fmt.Errorf("unknown template %q", name))
		return
	}

	cs := h.cookies.Load(r)
	p := page{Title: title, Flashes: cs.Flashes(), OAuth: h.oauth, Data: data}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		p.Identity = &id
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		h.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	if err := cs.Save(w); err != nil {
		h.log.WithError(err).Warn("failed to save cookie")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
