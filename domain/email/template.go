package email

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/erlendps/thingbooker/pkg/logger"
)

//go:embed templates
var embeddedTemplates embed.FS

// DefaultLayout wraps every rendered HTML body.
const DefaultLayout = "default"

const (
	htmlSuffix = ".hbs"
	textSuffix = ".txt.hbs"
)

// TemplateService renders Handlebars email templates.
//
// The template tree has the structure:
//   - layouts/*.hbs: layouts that receive the rendered body as {{{content}}}
//   - partials/*.hbs: reusable fragments, available to every template
//   - <group>/<name>.hbs: HTML body of template "<group>/<name>"
//   - <group>/<name>.txt.hbs: optional plain-text body
//
// Everything is parsed once at construction.
type TemplateService struct {
	log *slog.Logger

	html    map[string]*raymond.Template
	text    map[string]*raymond.Template
	layouts map[string]*raymond.Template
}

// TemplateRenderResult contains the rendered email content
type TemplateRenderResult struct {
	HTML string
	Text string
}

// TemplateContext is the data passed to templates
type TemplateContext map[string]any

// NewTemplateService loads the templates compiled into the binary
func NewTemplateService(log *slog.Logger) (*TemplateService, error) {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return nil, err
	}
	return NewTemplateServiceFS(sub, log)
}

// NewTemplateServiceFS loads templates from fsys
func NewTemplateServiceFS(fsys fs.FS, log *slog.Logger) (*TemplateService, error) {
	ts := &TemplateService{
		log:     log.With(logger.Scope("email.template")),
		html:    make(map[string]*raymond.Template),
		text:    make(map[string]*raymond.Template),
		layouts: make(map[string]*raymond.Template),
	}

	partials := make(map[string]string)
	sources := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, htmlSuffix) {
			return nil
		}
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		if dir, file := path.Split(p); dir == "partials/" {
			partials[strings.TrimSuffix(file, htmlSuffix)] = string(content)
			return nil
		}
		sources[p] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for p, src := range sources {
		tmpl, err := raymond.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", p, err)
		}
		for name, partial := range partials {
			tmpl.RegisterPartial(name, partial)
		}

		switch {
		case strings.HasPrefix(p, "layouts/"):
			ts.layouts[strings.TrimSuffix(strings.TrimPrefix(p, "layouts/"), htmlSuffix)] = tmpl
		case strings.HasSuffix(p, textSuffix):
			ts.text[strings.TrimSuffix(p, textSuffix)] = tmpl
		default:
			ts.html[strings.TrimSuffix(p, htmlSuffix)] = tmpl
		}
	}

	ts.log.Info("loaded email templates",
		slog.Int("templates", len(ts.html)),
		slog.Int("layouts", len(ts.layouts)),
		slog.Int("partials", len(partials)))

	return ts, nil
}

// HasTemplate checks if a template exists
func (ts *TemplateService) HasTemplate(name string) bool {
	_, ok := ts.html[name]
	return ok
}

// ListTemplates returns all template names in sorted order
func (ts *TemplateService) ListTemplates() []string {
	names := make([]string, 0, len(ts.html))
	for name := range ts.html {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render renders a template and wraps it in layoutName when that layout
// exists. The plain-text part comes from the template's .txt variant, or is
// derived from the context when there is none.
func (ts *TemplateService) Render(templateName string, context TemplateContext, layoutName string) (*TemplateRenderResult, error) {
	tmpl, ok := ts.html[templateName]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", templateName)
	}

	content, err := tmpl.Exec(context)
	if err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	if layoutName != "" {
		if layout, ok := ts.layouts[layoutName]; ok {
			layoutCtx := make(TemplateContext, len(context)+1)
			for k, v := range context {
				layoutCtx[k] = v
			}
			layoutCtx["content"] = raymond.SafeString(content)

			content, err = layout.Exec(layoutCtx)
			if err != nil {
				return nil, fmt.Errorf("failed to render layout %s: %w", layoutName, err)
			}
		} else {
			ts.log.Debug("layout not found, using template directly", slog.String("layout", layoutName))
		}
	}

	text := ""
	if textTmpl, ok := ts.text[templateName]; ok {
		text, err = textTmpl.Exec(context)
		if err != nil {
			return nil, fmt.Errorf("failed to render text template %s: %w", templateName, err)
		}
	} else {
		text = generatePlainText(context)
	}

	return &TemplateRenderResult{HTML: content, Text: text}, nil
}

// generatePlainText creates a plain text version from common context fields
func generatePlainText(context TemplateContext) string {
	if plainText, ok := context["plainText"].(string); ok && plainText != "" {
		return plainText
	}

	var parts []string
	for _, key := range []string{"title", "message"} {
		if v, ok := context[key].(string); ok && v != "" {
			parts = append(parts, v, "")
		}
	}
	if ctaURL, ok := context["ctaUrl"].(string); ok && ctaURL != "" {
		parts = append(parts, "Link: "+ctaURL, "")
	}

	return strings.Join(parts, "\n")
}
