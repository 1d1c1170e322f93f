package app

import (
	"fmt"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/database"
	handlers "github.com/tech-arch1tect/folio/handlers/newsletter"
	"github.com/tech-arch1tect/folio/middleware/ratelimit"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	"github.com/tech-arch1tect/folio/services/newsletter"
	"github.com/tech-arch1tect/folio/services/storage"
	"github.com/tech-arch1tect/folio/services/templates"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gorm.io/gorm"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithTemplates() *AppBuilder {
	b.services["templates"] = true
	return b
}

func (b *AppBuilder) WithMail() *AppBuilder {
	b.services["mail"] = true
	return b
}

func (b *AppBuilder) WithStorage() *AppBuilder {
	b.services["storage"] = true
	return b
}

func (b *AppBuilder) WithRateLimit() *AppBuilder {
	b.services["ratelimit"] = true
	return b
}

// WithNewsletter mounts the subscription and broadcast endpoints along with
// everything they depend on.
func (b *AppBuilder) WithNewsletter() *AppBuilder {
	b.services["newsletter"] = true
	return b.WithDatabase(newsletter.Models()...).
		WithTemplates().
		WithMail().
		WithStorage().
		WithRateLimit()
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	fxOptions := b.buildFxOptions(logger)
	fxOptions = append(fxOptions, fx.Invoke(func(srv *server.Server) {
		app.server = srv
	}))
	if b.services["database"] {
		fxOptions = append(fxOptions, fx.Invoke(func(db *gorm.DB) {
			app.db = db
		}))
	}

	fxApp := fx.New(fxOptions...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	app.fx = fxApp

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["newsletter"] {
		for _, dep := range []string{"database", "templates", "mail", "storage", "ratelimit"} {
			if !b.services[dep] {
				return fmt.Errorf("newsletter requires %s support", dep)
			}
		}
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	var options []fx.Option

	options = append(options,
		fx.Supply(b.config),
		fx.Supply(logger),
		b.fxLogger(logger),
	)

	options = append(options, server.NewProvider())

	if b.services["database"] {
		options = append(options,
			fx.Supply(database.WithModels(b.models...)),
			database.Module,
		)
	}
	if b.services["templates"] {
		options = append(options, templates.NewProvider())
	}
	if b.services["mail"] {
		options = append(options, mail.Module)
	}
	if b.services["storage"] {
		options = append(options, storage.Module)
	}
	if b.services["ratelimit"] {
		options = append(options, ratelimit.Module)
	}
	if b.services["newsletter"] {
		options = append(options, newsletter.Module, handlers.Module)
	}

	options = append(options, b.fxOptions...)

	return options
}

// fxLogger reports the container's own events only at debug level.
func (b *AppBuilder) fxLogger(logger *logging.Service) fx.Option {
	if b.config.Log.Level != string(logging.Debug) || logger.Logger() == nil {
		return fx.NopLogger
	}
	return fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Logger().Named("fx")}
	})
}
