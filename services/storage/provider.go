package storage

import (
	"context"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/fx"
)

// ProvideS3Store returns nil when no bucket is configured; sending a
// newsletter then fails with a configuration error.
func ProvideS3Store(cfg *config.Config, logger *logging.Service) (*S3Store, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("STORAGE_BUCKET not set, newsletter attachments cannot be stored")
		return nil, nil
	}
	return NewS3Store(context.Background(), &cfg.Storage, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideS3Store),
)
