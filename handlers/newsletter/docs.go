package newsletter

import (
	"net/http"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/openapi"
)

const (
	tagNewsletter = "newsletter"
	tagAdmin      = "admin"
	tagSystem     = "system"
	adminScheme   = "adminBasic"
)

// Docs describes every route mounted by RegisterRoutes.
func Docs(cfg *config.Config) *openapi.Document {
	doc := openapi.New(cfg.App.Name+" API", "1.0.0").
		Description("Newsletter subscriptions with double opt-in and admin broadcasts.").
		Tag(tagNewsletter, "Public subscription endpoints").
		Tag(tagAdmin, "Broadcasting, behind HTTP basic auth").
		Tag(tagSystem, "Health and API description").
		BasicAuth(adminScheme, "ADMIN_USERNAME / ADMIN_PASSWORD")
	if cfg.App.URL != "" {
		doc.Server(cfg.App.URL, "site")
	}

	doc.Route(http.MethodPost, "/subscribe").
		ID("subscribe").
		Summary("Subscribe an email address").
		Description("Records the address and emails a confirmation link. Resubmitting a pending address resends the link.").
		Tags(tagNewsletter).
		Body(SubscribeRequest{}, "address to subscribe").
		Response(http.StatusOK, StatusResponse{}, "pending, active, resent or resubscribed").
		Response(http.StatusBadRequest, ErrorResponse{}, "invalid email").
		Response(http.StatusForbidden, ErrorResponse{}, "address is unsubscribed").
		Response(http.StatusTooManyRequests, ErrorResponse{}, "rate limited").
		Response(http.StatusInternalServerError, ErrorResponse{}, "mail or storage not configured").
		Response(http.StatusBadGateway, ErrorResponse{}, "confirmation email could not be sent").
		Build()

	doc.Route(http.MethodPost, "/newsletter/confirm").
		ID("confirm").
		Summary("Confirm a subscription").
		Tags(tagNewsletter).
		Body(TokenRequest{}, "confirmation token").
		Response(http.StatusOK, StatusResponse{}, "confirmed or already_confirmed").
		Response(http.StatusBadRequest, ErrorResponse{}, "invalid link").
		Response(http.StatusForbidden, ErrorResponse{}, "address is unsubscribed").
		Response(http.StatusGone, ErrorResponse{}, "expired").
		Build()

	doc.Route(http.MethodGet, "/newsletter/confirm/:token").
		ID("confirmPage").
		Summary("Confirm a subscription from the emailed link").
		Tags(tagNewsletter).
		PathParam("token", "confirmation token").
		HTML(http.StatusOK, "confirmation result").
		HTML(http.StatusBadRequest, "invalid link").
		HTML(http.StatusGone, "expired link").
		Build()

	doc.Route(http.MethodPost, "/newsletter/unsubscribe").
		ID("unsubscribe").
		Summary("Unsubscribe, or cancel a pending subscription").
		Tags(tagNewsletter).
		Body(TokenRequest{}, "unsubscribe token").
		Response(http.StatusOK, StatusResponse{}, "unsubscribed, canceled or already_done").
		Response(http.StatusBadRequest, ErrorResponse{}, "invalid link").
		Response(http.StatusGone, ErrorResponse{}, "expired").
		Build()

	doc.Route(http.MethodGet, "/newsletter/unsubscribe/:token").
		ID("unsubscribePage").
		Summary("Unsubscribe confirmation page").
		Tags(tagNewsletter).
		PathParam("token", "unsubscribe token").
		HTML(http.StatusOK, "form that posts back to the same URL").
		Build()

	doc.Route(http.MethodPost, "/newsletter/unsubscribe/:token").
		ID("unsubscribeOneClick").
		Summary("Unsubscribe from the page form or a one-click mail client").
		Tags(tagNewsletter).
		PathParam("token", "unsubscribe token").
		HTML(http.StatusOK, "unsubscribe result").
		HTML(http.StatusBadRequest, "invalid link").
		HTML(http.StatusGone, "expired link").
		Build()

	doc.Route(http.MethodPost, "/newsletter/send").
		ID("send").
		Summary("Broadcast an issue to active subscribers").
		Description("With testEmail set only that active subscriber receives the issue. "+
			"When ADMIN_CSRF_ENABLED is set the _csrf field or X-CSRF-Token header must match the cookie issued by the admin page.").
		Tags(tagAdmin).
		Security(adminScheme).
		Multipart("issue to send", []string{"subject", "testEmail"}, []string{"file"}, []string{"subject", "file"}).
		Response(http.StatusOK, SendResponse{}, "per-recipient results").
		Response(http.StatusBadRequest, ErrorResponse{}, "invalid subject or attachment").
		Response(http.StatusUnauthorized, ErrorResponse{}, "missing or wrong credentials").
		Response(http.StatusConflict, ErrorResponse{}, "test recipient is not an active subscriber").
		Build()

	doc.Route(http.MethodGet, "/newsletter/stats").
		ID("stats").
		Summary("Count active subscribers").
		Tags(tagAdmin).
		Security(adminScheme).
		Response(http.StatusOK, StatsResponse{}, "active subscriber count").
		Response(http.StatusUnauthorized, ErrorResponse{}, "missing or wrong credentials").
		Build()

	doc.Route(http.MethodGet, "/admin/newsletter").
		ID("adminPage").
		Summary("Send form").
		Tags(tagAdmin).
		Security(adminScheme).
		HTML(http.StatusOK, "send form").
		Build()

	doc.Route(http.MethodGet, "/healthz").
		ID("health").
		Tags(tagSystem).
		Response(http.StatusOK, HealthResponse{}, "database reachable").
		Response(http.StatusServiceUnavailable, HealthResponse{}, "database unreachable").
		Build()

	return doc
}
