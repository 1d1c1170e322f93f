package options

import (
	"github.com/tech-arch1tect/folio/config"
	"go.uber.org/fx"
)

type Options struct {
	Config           *config.Config
	EnableNewsletter bool
	EnableTemplates  bool
	EnableDatabase   bool
	DatabaseModels   []any
	EnableMail       bool
	EnableStorage    bool
	EnableRateLimit  bool
	ExtraFxOptions   []fx.Option
}

type Option func(*Options)

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

func WithNewsletter() Option {
	return func(opts *Options) {
		opts.EnableNewsletter = true
	}
}

func WithTemplates() Option {
	return func(opts *Options) {
		opts.EnableTemplates = true
	}
}

func WithDatabase(models ...any) Option {
	return func(opts *Options) {
		opts.EnableDatabase = true
		opts.DatabaseModels = append(opts.DatabaseModels, models...)
	}
}

func WithMail() Option {
	return func(opts *Options) {
		opts.EnableMail = true
	}
}

func WithStorage() Option {
	return func(opts *Options) {
		opts.EnableStorage = true
	}
}

func WithRateLimit() Option {
	return func(opts *Options) {
		opts.EnableRateLimit = true
	}
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return func(opts *Options) {
		opts.ExtraFxOptions = append(opts.ExtraFxOptions, fxOpts...)
	}
}
