package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmlTemplate "html/template"
	"path/filepath"
	"strings"
	textTemplate "text/template"

	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

//go:embed templates/*.html templates/*.txt
var defaultTemplates embed.FS

// Content is a rendered email body.
type Content struct {
	HTML string
	Text string
}

// Templates renders named emails from an html and a text template set. The
// embedded defaults can be overridden file by file from a directory.
type Templates struct {
	html   *htmlTemplate.Template
	text   *textTemplate.Template
	logger *logging.Service
}

func NewTemplates(dir string, logger *logging.Service) (*Templates, error) {
	html, err := htmlTemplate.ParseFS(defaultTemplates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML templates: %w", err)
	}
	text, err := textTemplate.ParseFS(defaultTemplates, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse text templates: %w", err)
	}

	if dir != "" {
		logger.Info("loading mail template overrides", zap.String("templates_dir", dir))

		htmlPattern := filepath.Join(dir, "*.html")
		if matches, _ := filepath.Glob(htmlPattern); len(matches) > 0 {
			if html, err = html.ParseGlob(htmlPattern); err != nil {
				return nil, fmt.Errorf("failed to parse HTML templates: %w", err)
			}
		}

		textPattern := filepath.Join(dir, "*.txt")
		if matches, _ := filepath.Glob(textPattern); len(matches) > 0 {
			if text, err = text.ParseGlob(textPattern); err != nil {
				return nil, fmt.Errorf("failed to parse text templates: %w", err)
			}
		}
	}

	return &Templates{html: html, text: text, logger: logger}, nil
}

// Render executes name.html and name.txt. At least one must exist.
func (t *Templates) Render(name string, data any) (*Content, error) {
	var content Content
	var found bool

	if tmpl := t.html.Lookup(name + ".html"); tmpl != nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to execute HTML template: %w", err)
		}
		content.HTML = buf.String()
		found = true
	}

	if tmpl := t.text.Lookup(name + ".txt"); tmpl != nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to execute text template: %w", err)
		}
		content.Text = strings.TrimSpace(buf.String()) + "\n"
		found = true
	}

	if !found {
		t.logger.Warn("template not found", zap.String("template", name))
		return nil, fmt.Errorf("template '%s' not found", name)
	}

	return &content, nil
}
