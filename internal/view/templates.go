// Package view renders the server-side HTML pages.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
	"github.com/sabha-admin/sabha/web"
)

// Engine renders the embedded templates. Pages are looked up by their
// {{define}} name, e.g. "pages/roles/list.html".
type Engine struct {
	templates *template.Template
}

// TemplateData is the value every page receives.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Query       url.Values
	Principal   *identity.Principal
	Data        any
}

var funcs = template.FuncMap{
	"formatDate": formatDate,
	"grantKey": func(module, action string) string {
		return module + ":" + action
	},
	"label":     label,
	"pairs":     pairs,
	"withQuery": withQuery,
}

// NewEngine parses the embedded layouts, partials and pages.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(funcs).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
	)
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	return &Engine{templates: tpl}, nil
}

// Render writes the page with status 200.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes the page into a buffer first so a template error
// never leaves a half-written page behind.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("view: engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006 15:04 UTC")
}

// label turns identifiers such as "rate_limit_exceeded" into "Rate limit exceeded".
func label(v any) string {
	s := strings.ReplaceAll(fmt.Sprint(v), "_", " ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// pairs renders a metadata map as sorted key=value items.
func pairs(md map[string]string) []string {
	out := make([]string, 0, len(md))
	for k, v := range md {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// withQuery returns path with q, overriding each key/value pair given. An empty
// value removes the key.
func withQuery(path string, q url.Values, kv ...string) string {
	next := url.Values{}
	for k, vs := range q {
		next[k] = append([]string(nil), vs...)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			next.Del(kv[i])
			continue
		}
		next.Set(kv[i], kv[i+1])
	}
	if encoded := next.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}
