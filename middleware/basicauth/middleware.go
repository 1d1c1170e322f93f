package basicauth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

const defaultRealm = "Admin"

// Middleware guards admin routes with one shared credential pair. When
// either value is unset every request is refused.
func Middleware(cfg *config.AdminConfig, logger *logging.Service) echo.MiddlewareFunc {
	if cfg.Username == "" || cfg.Password == "" {
		logger.Warn("ADMIN_USERNAME or ADMIN_PASSWORD not set, admin routes are locked")
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="`+defaultRealm+`"`)
				return echo.NewHTTPError(http.StatusUnauthorized, "admin access is not configured")
			}
		}
	}

	username := []byte(cfg.Username)
	password := []byte(cfg.Password)

	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: defaultRealm,
		Validator: func(user, pass string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), username) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), password) == 1
			if userOK && passOK {
				return true, nil
			}

			logger.Warn("admin authentication failed",
				zap.String("ip", c.RealIP()),
				zap.String("path", c.Request().URL.Path))
			return false, nil
		},
	})
}
