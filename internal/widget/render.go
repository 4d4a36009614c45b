package widget

import (
	"html/template"
	"strings"
)

// Renderer turns a markup template plus a context into HTML.
type Renderer interface {
	Render(name, tmpl string, data any) (string, error)
}

// TemplateRenderer renders markup with html/template.
// Values from the context are escaped; the markup itself is trusted.
type TemplateRenderer struct {
	Funcs template.FuncMap
}

func (r TemplateRenderer) Render(name, tmpl string, data any) (string, error) {
	t := template.New(name).Option("missingkey=zero")
	if len(r.Funcs) > 0 {
		t = t.Funcs(r.Funcs)
	}
	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// markupFuncs are available to every markup template rendered by the
// registry's default renderer.
var markupFuncs = template.FuncMap{
	"default": defaultValue,
}

// defaultValue returns def when v is missing or empty, so markup can write
// {{default "System" .options.title}}.
func defaultValue(def, v any) any {
	if v == nil || v == "" {
		return def
	}
	return v
}

// markupContext is the data markup templates see: {{.id}} and {{.options.key}}.
func markupContext(id string, opts Options) map[string]any {
	return map[string]any{
		"id":      id,
		"options": opts,
	}
}
