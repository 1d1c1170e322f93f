package csrf

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/folio/config"
)

const contextKey = "csrf"

// Middleware issues a token cookie on safe requests and checks it on unsafe
// ones. A disabled config yields a pass-through.
func Middleware(cfg *config.CSRFConfig) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLength:    cfg.TokenLength,
		TokenLookup:    cfg.TokenLookup,
		ContextKey:     contextKey,
		CookieName:     cfg.CookieName,
		CookiePath:     cfg.CookiePath,
		CookieMaxAge:   cfg.CookieMaxAge,
		CookieSecure:   cfg.CookieSecure,
		CookieHTTPOnly: true,
		CookieSameSite: sameSite(cfg.CookieSameSite),
	})
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

// GetToken returns the token for the current request, or "" when the
// middleware is disabled.
func GetToken(c echo.Context) string {
	if token, ok := c.Get(contextKey).(string); ok {
		return token
	}
	return ""
}
