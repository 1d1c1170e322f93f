package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const redisKeyPrefix = "folio:"

// NewStore builds the configured store. The redis client is pinged so a bad
// address fails at startup rather than on the first request.
func NewStore(ctx context.Context, cfg *config.RateLimitConfig, logger *logging.Service) (Store, func() error, error) {
	switch cfg.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		logger.Info("rate limit store initialized", zap.String("store", "redis"), zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(client, redisKeyPrefix), client.Close, nil
	case "memory", "":
		store := NewMemoryStore()
		logger.Info("rate limit store initialized", zap.String("store", "memory"))
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported rate limit store: %s", cfg.Store)
	}
}

func ProvideRateLimitStore(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (Store, error) {
	store, closeFn, err := NewStore(context.Background(), &cfg.RateLimit, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFn()
		},
	})
	return store, nil
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
)
