package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"field": func(r model.Record, name string) string { return r.String(name) },
	"since": func(t time.Time) string { return humanize.Time(t) },
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"slug": func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), "-"))
	},
	// pct scales n against max for bar widths.
	"pct": func(n, max int) int {
		if max <= 0 {
			return 0
		}
		return n * 100 / max
	},
	"label": func(t i18n.Translator, name string) string { return t.T("field_" + name) },
	"stars": func(n int) string {
		n = max(0, min(n, 5))
		return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
	},
	"input": func(t i18n.Translator, values map[string]string, errs model.FieldErrors, name, labelKey, typ string) inputField {
		f := inputField{Name: name, Label: t.T(labelKey), Type: typ, Value: values[name]}
		if msg := errs[name]; msg != "" {
			f.Error = t.T(msg)
		}
		return f
	},
	"reqrow":  func(t i18n.Translator, r model.ServiceRequest) requestRow { return requestRow{I: t, R: r} },
	"ratings": func() []int { return []int{5, 4, 3, 2, 1} },
	"prefs": func(t i18n.Translator, theme, action string) prefsBar {
		return prefsBar{I: t, Theme: theme, Action: action, Langs: i18n.Supported}
	},
}

type inputField struct {
	Name  string
	Label string
	Type  string
	Value string
	Error string
}

type requestRow struct {
	I i18n.Translator
	R model.ServiceRequest
}

// prefsBar feeds the language and theme selectors.
type prefsBar struct {
	I      i18n.Translator
	Theme  string
	Action string
	Langs  []string
}

// Renderer executes the embedded templates.
type Renderer struct {
	t *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("ui").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{t: t}, nil
}

// MustRenderer is NewRenderer for package initialization.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Fragment renders a named template into a string usable inside another template.
func (r *Renderer) Fragment(name string, data any) (template.HTML, error) {
	var b bytes.Buffer
	if err := r.t.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(b.String()), nil
}

// Page renders a full document. Output is buffered so a failing template
// never leaves a half-written response.
func (r *Renderer) Page(w io.Writer, name string, data any) error {
	var b bytes.Buffer
	if err := r.t.ExecuteTemplate(&b, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := b.WriteTo(w)
	return err
}
