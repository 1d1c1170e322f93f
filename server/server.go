package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logging.Service
}

func New(cfg *config.Config, logger *logging.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	configureTrustedProxies(e, cfg.Server.TrustedProxies, logger)

	e.Use(middleware.Recover())
	e.Use(logging.RequestLogger(logger, "/healthz"))
	if len(cfg.Server.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderContentType},
		}))
	}

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
}

// Start binds the listen address and serves in the background. A bind
// failure is returned instead of being lost in the goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	s.echo.Listener = ln

	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	s.logRoutes()

	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.echo.Shutdown(ctx)
}

func (s *Server) Get(path string, handler echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.echo.GET(path, handler, m...)
}

func (s *Server) Post(path string, handler echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.echo.POST(path, handler, m...)
}

func (s *Server) Group(prefix string, m ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(prefix, m...)
}

func (s *Server) SetRenderer(renderer echo.Renderer) {
	s.echo.Renderer = renderer
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) logRoutes() {
	for _, r := range s.echo.Routes() {
		s.logger.Debug("route registered",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("handler", shortenHandlerName(r.Name)))
	}
}

// errorHandler renders every error in the {ok, error} shape used by the API.
func errorHandler(logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error("unhandled request error", zap.String("path", c.Request().URL.Path), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, map[string]any{"ok": false, "error": message})
		}
		if err != nil {
			logger.Error("failed to write error response", zap.Error(err))
		}
	}
}

// configureTrustedProxies reads the client IP from X-Forwarded-For only when
// the request came through one of the given proxies. With none configured
// the connection address is used.
func configureTrustedProxies(e *echo.Echo, proxies []string, logger *logging.Service) {
	var trust []echo.TrustOption
	for _, proxy := range proxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}

		if !strings.Contains(proxy, "/") {
			ip := net.ParseIP(proxy)
			if ip == nil {
				logger.Warn("ignoring invalid trusted proxy", zap.String("proxy", proxy))
				continue
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			proxy = fmt.Sprintf("%s/%d", proxy, bits)
		}

		_, ipNet, err := net.ParseCIDR(proxy)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", zap.String("proxy", proxy), zap.Error(err))
			continue
		}
		trust = append(trust, echo.TrustIPRange(ipNet))
	}

	if len(trust) == 0 {
		e.IPExtractor = echo.ExtractIPDirect()
		return
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(trust...)
}

// shortenHandlerName drops the module host from a handler's qualified name
// and truncates it for log output.
func shortenHandlerName(name string) string {
	const maxLen = 80

	if i := strings.Index(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if len(name) > maxLen {
		name = name[:maxLen-3] + "..."
	}
	return name
}
