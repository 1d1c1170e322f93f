package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

type Config struct {
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Logger         *logging.Service
}

// Middleware enforces Rate requests per Period for each key. If the store is
// unreachable the request is let through and the error logged.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := cfg.KeyGenerator(c)
			resetTime := time.Now().Add(cfg.Period)

			count, existingResetTime, exists, err := cfg.Store.Get(ctx, key)
			if err != nil {
				cfg.Logger.Error("rate limit store unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if exists {
				resetTime = existingResetTime
			}

			if count >= cfg.Rate {
				setHeaders(c, cfg.Rate, 0, resetTime)
				return cfg.OnLimitReached(c)
			}

			newCount := count + 1
			if cfg.CountMode == config.CountAll {
				if newCount, err = cfg.Store.Increment(ctx, key, resetTime); err != nil {
					cfg.Logger.Error("rate limit store unavailable", zap.String("key", key), zap.Error(err))
					return next(c)
				}
			}

			setHeaders(c, cfg.Rate, max(cfg.Rate-newCount, 0), resetTime)

			err = next(c)

			if cfg.CountMode != config.CountAll {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}

				if countsTowardLimit(cfg.CountMode, status) {
					if _, storeErr := cfg.Store.Increment(ctx, key, resetTime); storeErr != nil {
						cfg.Logger.Error("rate limit store unavailable", zap.String("key", key), zap.Error(storeErr))
					}
				}
			}

			return err
		}
	}
}

func countsTowardLimit(mode config.CountingMode, status int) bool {
	switch mode {
	case config.CountFailures:
		return status >= 400
	case config.CountSuccess:
		return status < 400
	default:
		return true
	}
}

func setHeaders(c echo.Context, limit, remaining int, resetTime time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP
}

// PrefixedKeyGenerator scopes the client IP key to one route group.
func PrefixedKeyGenerator(prefix string) func(c echo.Context) string {
	return func(c echo.Context) string {
		return prefix + ":" + DefaultKeyGenerator(c)
	}
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}

// JSONOnLimitReached answers in the {ok, error} shape of the JSON API.
func JSONOnLimitReached(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"ok":    false,
		"error": "too many requests, try again later",
	})
}
