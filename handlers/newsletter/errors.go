package newsletter

import (
	"net/http"

	"github.com/labstack/echo/v4"
	nl "github.com/tech-arch1tect/folio/services/newsletter"
	"go.uber.org/zap"
)

// errorStatus maps the newsletter error taxonomy to an HTTP status and the
// message shown to the client.
func errorStatus(err error) (int, string) {
	kind, ok := nl.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}

	switch kind {
	case nl.KindValidation:
		return http.StatusBadRequest, err.Error()
	case nl.KindInvalidToken:
		return http.StatusBadRequest, "invalid link"
	case nl.KindExpired:
		return http.StatusGone, "expired"
	case nl.KindForbidden:
		return http.StatusForbidden, err.Error()
	case nl.KindRecipientNotEligible:
		return http.StatusConflict, err.Error()
	case nl.KindMail:
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func badRequest(message string) error {
	return &nl.Error{Kind: nl.KindValidation, Message: message}
}

func (h *Handler) fail(c echo.Context, err error) error {
	status, message := h.logFailure(c, err)
	return c.JSON(status, ErrorResponse{OK: false, Error: message})
}

func (h *Handler) logFailure(c echo.Context, err error) (int, string) {
	status, message := errorStatus(err)

	fields := []zap.Field{
		zap.String("route", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("newsletter request failed", fields...)
	} else {
		h.logger.Debug("newsletter request rejected", fields...)
	}
	return status, message
}
