package newsletter

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/middleware/basicauth"
	"github.com/tech-arch1tect/folio/middleware/csrf"
	"github.com/tech-arch1tect/folio/middleware/ratelimit"
	"github.com/tech-arch1tect/folio/openapi"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	nl "github.com/tech-arch1tect/folio/services/newsletter"
	"go.uber.org/zap"
)

// Subscriptions is the part of *newsletter.Manager the handlers use.
type Subscriptions interface {
	Subscribe(ctx context.Context, email string) (nl.Outcome, error)
	SubscribeWithConfirmation(ctx context.Context, email string) (nl.Outcome, error)
	Confirm(ctx context.Context, token string) (nl.Outcome, error)
	Unsubscribe(ctx context.Context, token string) (nl.Outcome, error)
	ConfirmationEnabled() bool
}

// Broadcaster is the part of *newsletter.Sender the handlers use.
type Broadcaster interface {
	Send(ctx context.Context, req nl.SendRequest) (*nl.SendResult, error)
	ActiveCount(ctx context.Context) (int64, error)
}

type Handler struct {
	cfg    *config.Config
	subs   Subscriptions
	sender Broadcaster
	ping   func(ctx context.Context) error
	logger *logging.Service
	docs   *openapi.Document
}

func NewHandler(cfg *config.Config, subs Subscriptions, sender Broadcaster, ping func(ctx context.Context) error, logger *logging.Service) *Handler {
	return &Handler{
		cfg:    cfg,
		subs:   subs,
		sender: sender,
		ping:   ping,
		logger: logger,
		docs:   Docs(cfg),
	}
}

// RegisterRoutes mounts the public API, the browser pages and the admin
// routes. store backs the subscribe rate limit.
func (h *Handler) RegisterRoutes(srv *server.Server, store ratelimit.Store) {
	if !h.subs.ConfirmationEnabled() {
		h.logger.Warn("newsletter mail not configured, subscriptions are recorded without a confirmation email")
	}

	subscribeLimit := ratelimit.Middleware(&ratelimit.Config{
		Store:          store,
		Rate:           h.cfg.RateLimit.SubscribeRate,
		Period:         h.cfg.RateLimit.SubscribePeriod,
		CountMode:      h.cfg.RateLimit.CountMode,
		KeyGenerator:   ratelimit.PrefixedKeyGenerator("subscribe"),
		OnLimitReached: ratelimit.JSONOnLimitReached,
		Logger:         h.logger,
	})
	admin := basicauth.Middleware(&h.cfg.Admin, h.logger)
	adminForm := csrf.Middleware(&h.cfg.Admin.CSRF)
	uploadLimit := middleware.BodyLimit(fmt.Sprintf("%dK", (h.cfg.Newsletter.MaxAttachmentSize>>10)+1024))

	srv.Post("/subscribe", h.subscribe, subscribeLimit)

	g := srv.Group("/newsletter")
	g.POST("/confirm", h.confirm)
	g.GET("/confirm", h.confirmPage)
	g.GET("/confirm/:token", h.confirmPage)
	g.POST("/unsubscribe", h.unsubscribe)
	g.GET("/unsubscribe", h.unsubscribePage)
	g.GET("/unsubscribe/:token", h.unsubscribePage)
	g.POST("/unsubscribe/:token", h.unsubscribeSubmit)
	g.POST("/send", h.send, admin, uploadLimit, adminForm)
	g.GET("/stats", h.stats, admin)

	srv.Get("/admin/newsletter", h.adminPage, admin, adminForm)
	srv.Get("/healthz", h.health)
	srv.Get("/openapi.json", h.docs.JSONHandler())
	srv.Get("/openapi.yaml", h.docs.YAMLHandler())
}

func (h *Handler) subscribe(c echo.Context) error {
	var req SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, badRequest("invalid request body"))
	}

	ctx := c.Request().Context()
	var (
		outcome nl.Outcome
		err     error
	)
	if h.subs.ConfirmationEnabled() {
		outcome, err = h.subs.SubscribeWithConfirmation(ctx, req.Email)
	} else {
		outcome, err = h.subs.Subscribe(ctx, req.Email)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, StatusResponse{OK: true, Status: string(outcome)})
}

func (h *Handler) confirm(c echo.Context) error {
	token, err := bindToken(c)
	if err != nil {
		return h.fail(c, err)
	}

	outcome, err := h.subs.Confirm(c.Request().Context(), token)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, StatusResponse{OK: true, Status: string(outcome)})
}

func (h *Handler) unsubscribe(c echo.Context) error {
	token, err := bindToken(c)
	if err != nil {
		return h.fail(c, err)
	}

	outcome, err := h.subs.Unsubscribe(c.Request().Context(), token)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, StatusResponse{OK: true, Status: string(outcome)})
}

func (h *Handler) send(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, badRequest("file is required"))
	}
	content, err := readUpload(fh, h.cfg.Newsletter.MaxAttachmentSize)
	if err != nil {
		return h.fail(c, badRequest("failed to read file"))
	}

	result, err := h.sender.Send(c.Request().Context(), nl.SendRequest{
		Subject:     c.FormValue("subject"),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     content,
		TestEmail:   c.FormValue("testEmail"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SendResponse{OK: true, SendResult: result})
}

func (h *Handler) stats(c echo.Context) error {
	count, err := h.sender.ActiveCount(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, StatsResponse{OK: true, ActiveCount: count})
}

func (h *Handler) health(c echo.Context) error {
	if err := h.ping(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{OK: false, Database: "down"})
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Database: "up"})
}

// bindToken reads the token from the body, falling back to ?token=.
func bindToken(c echo.Context) (string, error) {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return "", badRequest("invalid request body")
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}
	return req.Token, nil
}

// pageToken prefers the path segment over ?token=.
func pageToken(c echo.Context) string {
	if token := c.Param("token"); token != "" {
		return token
	}
	return c.QueryParam("token")
}

// readUpload reads at most limit+1 bytes so an oversized file is detected
// without buffering all of it.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}
