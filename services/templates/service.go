package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

//go:embed pages/*.html
var defaultPages embed.FS

// Service holds the HTML pages served by the site: token result pages and
// the admin send form. Pages in Dir replace the embedded ones of the same
// name.
type Service struct {
	config    *config.TemplatesConfig
	logger    *logging.Service
	mu        sync.RWMutex
	templates *template.Template
}

func New(cfg *config.TemplatesConfig, logger *logging.Service) *Service {
	if cfg.Extension == "" {
		cfg.Extension = ".html"
	}
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) LoadTemplates() error {
	tmpl, err := s.parse()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.templates = tmpl
	s.mu.Unlock()

	s.logger.Debug("page templates loaded", zap.String("defined", tmpl.DefinedTemplates()))
	return nil
}

func (s *Service) parse() (*template.Template, error) {
	tmpl, err := template.ParseFS(defaultPages, "pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded pages: %w", err)
	}

	if s.config.Dir == "" {
		return tmpl, nil
	}

	pattern := filepath.Join(s.config.Dir, "*"+s.config.Extension)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		s.logger.Warn("no page templates found in directory", zap.String("pattern", pattern))
		return tmpl, nil
	}

	return tmpl.ParseFiles(matches...)
}

func (s *Service) Renderer() *Renderer {
	return &Renderer{service: s}
}

// Names lists the embedded page names.
func Names() []string {
	names, _ := fs.Glob(defaultPages, "pages/*.html")
	for i, name := range names {
		names[i] = filepath.Base(name)
	}
	return names
}

// Renderer adapts the Service to echo.Renderer.
type Renderer struct {
	service *Service
}

func (r *Renderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	s := r.service

	if s.config.Development {
		tmpl, err := s.parse()
		if err != nil {
			return err
		}
		return tmpl.ExecuteTemplate(w, name, data)
	}

	s.mu.RLock()
	tmpl := s.templates
	s.mu.RUnlock()
	if tmpl == nil {
		return fmt.Errorf("page templates not loaded")
	}
	return tmpl.ExecuteTemplate(w, name, data)
}
