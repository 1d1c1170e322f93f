// Package folio is the entry point for building the newsletter backend.
package folio

import (
	"github.com/tech-arch1tect/folio/app"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/internal/options"
	"go.uber.org/fx"
)

type App = app.App

func New(opts ...options.Option) (*App, error) {
	return app.New(opts...)
}

func WithConfig(cfg *config.Config) options.Option {
	return options.WithConfig(cfg)
}

// WithNewsletter enables subscriptions, broadcasts and their dependencies.
func WithNewsletter() options.Option {
	return options.WithNewsletter()
}

func WithFxOptions(opts ...fx.Option) options.Option {
	return options.WithFxOptions(opts...)
}
