package newsletter

import (
	"context"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/database"
	"github.com/tech-arch1tect/folio/middleware/ratelimit"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	nl "github.com/tech-arch1tect/folio/services/newsletter"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideHandler(cfg *config.Config, manager *nl.Manager, sender *nl.Sender, db *gorm.DB, logger *logging.Service) *Handler {
	ping := func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
	return NewHandler(cfg, manager, sender, ping, logger)
}

func RegisterRoutes(srv *server.Server, h *Handler, store ratelimit.Store) {
	h.RegisterRoutes(srv, store)
}

var Module = fx.Options(
	fx.Provide(ProvideHandler),
	fx.Invoke(RegisterRoutes),
)
