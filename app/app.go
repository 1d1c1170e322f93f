package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/internal/options"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	stopTimeout     = 30 * time.Second
	testStopTimeout = 2 * time.Second
)

type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB
	server *server.Server
}

// New builds an App from functional options.
func New(opts ...options.Option) (*App, error) {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	b := NewApp()
	if o.Config != nil {
		b.WithConfig(o.Config)
	}
	if o.EnableNewsletter {
		b.WithNewsletter()
	}
	if o.EnableDatabase {
		b.WithDatabase(o.DatabaseModels...)
	}
	if o.EnableTemplates {
		b.WithTemplates()
	}
	if o.EnableMail {
		b.WithMail()
	}
	if o.EnableStorage {
		b.WithStorage()
	}
	if o.EnableRateLimit {
		b.WithRateLimit()
	}
	b.WithFxOptions(o.ExtraFxOptions...)

	return b.Build()
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) StartTest() error {
	return a.fx.Start(context.Background())
}

// Run starts the app and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	a.logger.Info("received shutdown signal, stopping gracefully", zap.String("signal", sig.String()))

	return a.stop(stopTimeout)
}

func (a *App) Stop() {
	if err := a.stop(stopTimeout); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
	}
}

func (a *App) StopTest() {
	if err := a.stop(testStopTimeout); err != nil {
		a.logger.Error("failed to stop test application", zap.Error(err))
	}
}

func (a *App) stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := a.fx.Stop(ctx)
	if l := a.logger.Logger(); l != nil {
		_ = l.Sync()
	}
	return err
}

func (a *App) Server() *echo.Echo {
	if a.server == nil {
		a.logger.Warn("server not initialized through dependency injection")
		return nil
	}
	return a.server.Echo()
}

func (a *App) HTTPServer() *server.Server {
	return a.server
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) RegisterRoutes(fn func(*echo.Echo)) {
	if server := a.Server(); server != nil {
		fn(server)
	}
}

func (a *App) Get(path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) {
	if a.Server() != nil {
		a.server.Get(path, handler, middleware...)
	}
}

func (a *App) Post(path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) {
	if a.Server() != nil {
		a.server.Post(path, handler, middleware...)
	}
}
