package newsletter

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/folio/middleware/csrf"
	nl "github.com/tech-arch1tect/folio/services/newsletter"
)

const (
	resultPage      = "result.html"
	unsubscribePage = "unsubscribe.html"
	adminPage       = "admin_newsletter.html"
)

type pageCopy struct {
	title   string
	message string
}

var outcomeCopy = map[nl.Outcome]pageCopy{
	nl.OutcomeConfirmed:            {"Subscription confirmed", "Thanks for confirming. New issues will arrive in your inbox."},
	nl.OutcomeConfirmedWithWarning: {"Subscription confirmed", "Thanks for confirming. New issues will arrive in your inbox."},
	nl.OutcomeConfirmedNoWelcome:   {"Subscription confirmed", "You are subscribed, but the welcome email could not be sent."},
	nl.OutcomeAlreadyConfirmed:     {"Already confirmed", "This subscription was already confirmed."},
	nl.OutcomeUnsubscribed:         {"Unsubscribed", "You will not receive any more issues."},
	nl.OutcomeCanceled:             {"Subscription cancelled", "The subscription request was cancelled and no issues will be sent."},
	nl.OutcomeAlreadyDone:          {"Already unsubscribed", "This address was already unsubscribed."},
}

var kindCopy = map[nl.Kind]pageCopy{
	nl.KindInvalidToken: {"Invalid link", "This link is not valid. Check that it was copied completely."},
	nl.KindExpired:      {"Link expired", "This link has expired. Subscribe again to get a new one."},
	nl.KindForbidden:    {"Not allowed", "This address is unsubscribed. Subscribe again to receive the newsletter."},
}

type resultData struct {
	AppName string
	Title   string
	Message string
	OK      bool
	HomeURL string
}

type unsubscribeData struct {
	AppName string
	Action  string
	HomeURL string
}

type adminData struct {
	AppName           string
	ActiveCount       int64
	SendURL           string
	AllowedExtensions string
	Accept            string
	MaxSizeMB         int64
	CSRFToken         string
}

func (h *Handler) confirmPage(c echo.Context) error {
	outcome, err := h.subs.Confirm(c.Request().Context(), pageToken(c))
	if err != nil {
		return h.failPage(c, err)
	}
	return h.renderOutcome(c, outcome)
}

// unsubscribePage asks for confirmation before unsubscribing so that link
// scanners following the URL do not unsubscribe the reader.
func (h *Handler) unsubscribePage(c echo.Context) error {
	token := pageToken(c)
	if token == "" {
		return h.failPage(c, &nl.Error{Kind: nl.KindInvalidToken})
	}
	return c.Render(http.StatusOK, unsubscribePage, unsubscribeData{
		AppName: h.cfg.App.Name,
		Action:  "/newsletter/unsubscribe/" + url.PathEscape(token),
		HomeURL: h.homeURL(),
	})
}

// unsubscribeSubmit handles the page form and RFC 8058 one-click posts.
func (h *Handler) unsubscribeSubmit(c echo.Context) error {
	outcome, err := h.subs.Unsubscribe(c.Request().Context(), pageToken(c))
	if err != nil {
		return h.failPage(c, err)
	}
	return h.renderOutcome(c, outcome)
}

func (h *Handler) adminPage(c echo.Context) error {
	count, err := h.sender.ActiveCount(c.Request().Context())
	if err != nil {
		return h.failPage(c, err)
	}

	exts := h.cfg.Newsletter.AllowedExtensions
	accept := make([]string, len(exts))
	for i, ext := range exts {
		accept[i] = "." + ext
	}

	return c.Render(http.StatusOK, adminPage, adminData{
		AppName:           h.cfg.App.Name,
		ActiveCount:       count,
		SendURL:           "/newsletter/send",
		AllowedExtensions: strings.Join(exts, ", "),
		Accept:            strings.Join(accept, ","),
		MaxSizeMB:         h.cfg.Newsletter.MaxAttachmentSize >> 20,
		CSRFToken:         csrf.GetToken(c),
	})
}

func (h *Handler) renderOutcome(c echo.Context, outcome nl.Outcome) error {
	text, ok := outcomeCopy[outcome]
	if !ok {
		text = pageCopy{title: "Done", message: string(outcome)}
	}
	return c.Render(http.StatusOK, resultPage, resultData{
		AppName: h.cfg.App.Name,
		Title:   text.title,
		Message: text.message,
		OK:      true,
		HomeURL: h.homeURL(),
	})
}

func (h *Handler) failPage(c echo.Context, err error) error {
	status, message := h.logFailure(c, err)

	text := pageCopy{title: "Something went wrong", message: message}
	if kind, ok := nl.KindOf(err); ok {
		if known, ok := kindCopy[kind]; ok {
			text = known
		}
	}
	return c.Render(status, resultPage, resultData{
		AppName: h.cfg.App.Name,
		Title:   text.title,
		Message: text.message,
		HomeURL: h.homeURL(),
	})
}

func (h *Handler) homeURL() string {
	if h.cfg.App.URL == "" {
		return "/"
	}
	return h.cfg.App.URL
}
