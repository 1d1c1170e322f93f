package newsletter

import (
	"context"
	"time"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	"github.com/tech-arch1tect/folio/services/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by the Manager and the Sender. Mail and
// storage are optional so the site can run without them.
type Deps struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Logger    *logging.Service
	Mailer    mail.Mailer      `optional:"true"`
	Templates *mail.Templates  `optional:"true"`
	Storage   *storage.S3Store `optional:"true"`
}

// collaborators converts optional pointers to interfaces without leaking a
// typed nil.
func (d Deps) collaborators() (Renderer, BlobStore) {
	var renderer Renderer
	if d.Templates != nil {
		renderer = d.Templates
	}
	var blobs BlobStore
	if d.Storage != nil {
		blobs = d.Storage
	}
	return renderer, blobs
}

func ProvideStores(db *gorm.DB) Stores {
	return NewGormStores(db)
}

func ProvideManager(deps Deps, stores Stores) *Manager {
	renderer, blobs := deps.collaborators()
	return NewManager(deps.Config, stores, deps.Mailer, renderer, blobs, deps.Logger)
}

func ProvideSender(deps Deps, stores Stores) *Sender {
	renderer, blobs := deps.collaborators()
	return NewSender(deps.Config, stores, deps.Mailer, renderer, blobs, deps.Logger)
}

// RegisterTokenPurge runs PurgeExpiredTokens on an interval while the app is
// running. A zero interval disables it.
func RegisterTokenPurge(lc fx.Lifecycle, cfg *config.Config, manager *Manager, logger *logging.Service) {
	interval := cfg.Newsletter.TokenPurgeInterval
	if interval <= 0 {
		logger.Debug("newsletter token purge disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting newsletter token purge", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				runPurge(ctx, interval, manager, logger)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func runPurge(ctx context.Context, interval time.Duration, manager *Manager, logger *logging.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.PurgeExpiredTokens(ctx); err != nil {
				logger.Error("newsletter token purge failed", zap.Error(err))
			}
		}
	}
}

var Module = fx.Options(
	fx.Provide(ProvideStores),
	fx.Provide(ProvideManager),
	fx.Provide(ProvideSender),
	fx.Invoke(RegisterTokenPurge),
)
