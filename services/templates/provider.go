package templates

import (
	"context"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/fx"
)

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(func(cfg *config.Config, logger *logging.Service) *Service {
			return New(&cfg.Templates, logger)
		}),
		fx.Invoke(func(lc fx.Lifecycle, svc *Service, srv *server.Server) {
			srv.SetRenderer(svc.Renderer())

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return svc.LoadTemplates()
				},
			})
		}),
	)
}
