package logging

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
)

// secretQueryParams are replaced before a request URI is logged.
var secretQueryParams = []string{"token"}

// RequestLogger logs one entry per request, levelled by response status.
// Requests whose path is in skipPaths are not logged. Routes with path
// parameters are logged by pattern so bearer tokens in the URL are not kept.
func RequestLogger(logger *Service, skipPaths ...string) echo.MiddlewareFunc {
	skipMap := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skipMap[path] = true
	}

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogError:     true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		Skipper: func(c echo.Context) bool {
			return skipMap[c.Request().URL.Path]
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := requestFields(loggedURI(c), v)

			switch {
			case v.Status >= 500:
				logger.Error("server error", fields...)
			case v.Status >= 400:
				logger.Warn("client error", fields...)
			case v.Status >= 300:
				logger.Info("redirection", fields...)
			default:
				logger.Info("request", fields...)
			}

			return nil
		},
	})
}

// loggedURI is the request URI with path parameters replaced by the route
// pattern and secret query values redacted.
func loggedURI(c echo.Context) string {
	u := c.Request().URL
	path := u.Path
	if route := c.Path(); route != "" && len(c.ParamNames()) > 0 {
		path = route
	}

	query := u.Query()
	for _, key := range secretQueryParams {
		if query.Has(key) {
			query.Set(key, "redacted")
		}
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func requestFields(uri string, v middleware.RequestLoggerValues) []zap.Field {
	fields := []zap.Field{
		zap.String("method", v.Method),
		zap.String("uri", uri),
		zap.Int("status", v.Status),
		zap.Duration("latency", v.Latency),
		zap.String("remote_ip", v.RemoteIP),
	}

	if v.UserAgent != "" {
		ua := useragent.Parse(v.UserAgent)
		fields = append(fields,
			zap.String("browser", ua.Name),
			zap.String("os", ua.OS),
			zap.Bool("bot", ua.Bot))
	}

	if v.Error != nil {
		fields = append(fields, zap.Error(v.Error))
	}

	return fields
}
