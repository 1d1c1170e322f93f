package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/middleware/ratelimit"
	"github.com/tech-arch1tect/folio/server"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	nl "github.com/tech-arch1tect/folio/services/newsletter"
	"github.com/tech-arch1tect/folio/services/templates"
	"github.com/tech-arch1tect/folio/testutils"
)

var linkPattern = regexp.MustCompile(`/newsletter/(confirm|unsubscribe)/([0-9a-f]+)`)

type testEnv struct {
	e       *echo.Echo
	cfg     *config.Config
	stores  nl.Stores
	mailer  *testutils.MockMailer
	blobs   *testutils.MockBlobStore
	clock   *testutils.FakeClock
	pingErr error
}

type envOption func(*config.Config, *envSettings)

type envSettings struct {
	noMail bool
}

func withoutMail() envOption {
	return func(_ *config.Config, s *envSettings) { s.noMail = true }
}

func withConfig(fn func(*config.Config)) envOption {
	return func(cfg *config.Config, _ *envSettings) { fn(cfg) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		cfg:    testutils.GetTestConfig(),
		mailer: &testutils.MockMailer{},
		blobs:  &testutils.MockBlobStore{},
		clock:  testutils.NewFakeClock(),
	}
	var settings envSettings
	for _, opt := range opts {
		opt(env.cfg, &settings)
	}

	db := testutils.SetupTestDB(t, nl.Models()...)
	env.stores = nl.NewGormStores(db)

	emails, err := mail.NewTemplates("", logging.NewNop())
	require.NoError(t, err)

	clock := nl.WithClock(env.clock.Now)
	noSleep := nl.WithSleep(func(context.Context, time.Duration) error { return nil })

	var manager *nl.Manager
	if settings.noMail {
		manager = nl.NewManager(env.cfg, env.stores, nil, nil, nil, logging.NewNop(), clock)
	} else {
		manager = nl.NewManager(env.cfg, env.stores, env.mailer, emails, env.blobs, logging.NewNop(), clock)
	}
	sender := nl.NewSender(env.cfg, env.stores, env.mailer, emails, env.blobs, logging.NewNop(), clock, noSleep)

	pages := templates.New(&env.cfg.Templates, logging.NewNop())
	require.NoError(t, pages.LoadTemplates())

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	srv := server.New(env.cfg, logging.NewNop())
	srv.SetRenderer(pages.Renderer())
	env.e = srv.Echo()
	ping := func(context.Context) error { return env.pingErr }
	NewHandler(env.cfg, manager, sender, ping, logging.NewNop()).RegisterRoutes(srv, store)
	return env
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return env.serve(req)
}

func (env *testEnv) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return env.serve(req)
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	return env.serve(httptest.NewRequest(http.MethodGet, path, nil))
}

func (env *testEnv) admin(req *http.Request) *httptest.ResponseRecorder {
	req.SetBasicAuth(env.cfg.Admin.Username, env.cfg.Admin.Password)
	return env.serve(req)
}

func (env *testEnv) mailSucceeds() {
	env.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
}

func (env *testEnv) addSubscriber(t *testing.T, email string, status nl.Status) {
	t.Helper()
	ctx := context.Background()

	sub, _, err := env.stores.Subscribers.GetOrCreate(ctx, email, env.clock.Now())
	require.NoError(t, err)
	switch status {
	case nl.StatusActive:
		require.NoError(t, env.stores.Subscribers.Activate(ctx, sub.ID, env.clock.Now()))
	case nl.StatusUnsubscribed:
		require.NoError(t, env.stores.Subscribers.SetStatus(ctx, sub.ID, nl.StatusUnsubscribed))
	}
}

// subscribe runs the public subscribe call and returns the links from the
// confirmation email.
func (env *testEnv) subscribe(t *testing.T, email string) (confirm, cancel string) {
	t.Helper()

	rec := env.postJSON("/subscribe", SubscribeRequest{Email: email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	messages := env.mailer.Messages()
	require.NotEmpty(t, messages)
	found := make(map[string]string)
	for _, match := range linkPattern.FindAllStringSubmatch(messages[len(messages)-1].Text, -1) {
		found[match[1]] = match[2]
	}
	require.Contains(t, found, "confirm")
	require.Contains(t, found, "unsubscribe")
	return found["confirm"], found["unsubscribe"]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/newsletter/send", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestSubscribe(t *testing.T) {
	t.Run("json body sends a confirmation email", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: " Reader@Example.com "})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, StatusResponse{OK: true, Status: "pending"}, decode[StatusResponse](t, rec))

		messages := env.mailer.Messages()
		require.Len(t, messages, 1)
		assert.Equal(t, []string{"reader@example.com"}, messages[0].To)
	})

	t.Run("form body", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()

		rec := env.postForm("/subscribe", url.Values{"email": {"reader@example.com"}})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pending", decode[StatusResponse](t, rec).Status)
	})

	t.Run("resubmitting a pending address resends", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		env.subscribe(t, "reader@example.com")

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})

		assert.Equal(t, "resent", decode[StatusResponse](t, rec).Status)
		assert.Len(t, env.mailer.Messages(), 2)
	})

	t.Run("invalid email", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: "not-an-email"})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[ErrorResponse](t, rec)
		assert.False(t, body.OK)
		assert.NotEmpty(t, body.Error)
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := env.serve(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid request body", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("mail failure is a bad gateway", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.False(t, decode[ErrorResponse](t, rec).OK)
	})

	t.Run("without mail the address is recorded as pending", func(t *testing.T) {
		env := newTestEnv(t, withoutMail())

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pending", decode[StatusResponse](t, rec).Status)
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("rate limited per client", func(t *testing.T) {
		env := newTestEnv(t, withConfig(func(cfg *config.Config) { cfg.RateLimit.SubscribeRate = 2 }))
		env.mailSucceeds()

		for range 2 {
			rec := env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.False(t, decode[ErrorResponse](t, rec).OK)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	})
}

func TestConfirm(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")

		rec := env.postJSON("/newsletter/confirm", TokenRequest{Token: confirm})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "confirmed", decode[StatusResponse](t, rec).Status)

		rec = env.postJSON("/newsletter/confirm", TokenRequest{Token: confirm})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "already_confirmed", decode[StatusResponse](t, rec).Status)
	})

	t.Run("token from query string", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")

		req := httptest.NewRequest(http.MethodPost, "/newsletter/confirm?token="+confirm, nil)
		rec := env.serve(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "confirmed", decode[StatusResponse](t, rec).Status)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.postJSON("/newsletter/confirm", TokenRequest{Token: strings.Repeat("ab", 32)})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ErrorResponse{OK: false, Error: "invalid link"}, decode[ErrorResponse](t, rec))
	})

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.postJSON("/newsletter/confirm", TokenRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")
		env.clock.Advance(25 * time.Hour)

		rec := env.postJSON("/newsletter/confirm", TokenRequest{Token: confirm})

		require.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, "expired", decode[ErrorResponse](t, rec).Error)
	})
}

func TestConfirmPage(t *testing.T) {
	t.Run("path token", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")

		rec := env.get("/newsletter/confirm/" + confirm)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML)
		assert.Contains(t, rec.Body.String(), "Subscription confirmed")
		assert.NotContains(t, rec.Body.String(), `class="error"`)
	})

	t.Run("query token", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")

		rec := env.get("/newsletter/confirm?token=" + confirm)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Subscription confirmed")
	})

	t.Run("path token wins over query", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")

		rec := env.get("/newsletter/confirm/" + confirm + "?token=bogus")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Subscription confirmed")
	})

	t.Run("invalid link", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.get("/newsletter/confirm/deadbeef")

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid link")
		assert.Contains(t, rec.Body.String(), `class="error"`)
	})

	t.Run("expired link", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, _ := env.subscribe(t, "reader@example.com")
		env.clock.Advance(48 * time.Hour)

		rec := env.get("/newsletter/confirm/" + confirm)

		require.Equal(t, http.StatusGone, rec.Code)
		assert.Contains(t, rec.Body.String(), "Link expired")
	})
}

func TestUnsubscribe(t *testing.T) {
	t.Run("pending subscription is canceled", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		_, cancel := env.subscribe(t, "reader@example.com")

		rec := env.postJSON("/newsletter/unsubscribe", TokenRequest{Token: cancel})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "canceled", decode[StatusResponse](t, rec).Status)

		rec = env.postJSON("/newsletter/unsubscribe", TokenRequest{Token: cancel})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "already_done", decode[StatusResponse](t, rec).Status)
	})

	t.Run("active subscriber is unsubscribed", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, cancel := env.subscribe(t, "reader@example.com")
		require.Equal(t, http.StatusOK, env.postJSON("/newsletter/confirm", TokenRequest{Token: confirm}).Code)

		rec := env.postJSON("/newsletter/unsubscribe", TokenRequest{Token: cancel})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "unsubscribed", decode[StatusResponse](t, rec).Status)

		rec = env.postJSON("/subscribe", SubscribeRequest{Email: "reader@example.com"})
		assert.Equal(t, "resubscribed", decode[StatusResponse](t, rec).Status)
	})

	t.Run("invalid token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.postJSON("/newsletter/unsubscribe", TokenRequest{Token: "nope"})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid link", decode[ErrorResponse](t, rec).Error)
	})
}

func TestUnsubscribePage(t *testing.T) {
	t.Run("get renders a form and does not unsubscribe", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		_, cancel := env.subscribe(t, "reader@example.com")

		rec := env.get("/newsletter/unsubscribe/" + cancel)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `action="/newsletter/unsubscribe/`+cancel+`"`)

		sub, err := env.stores.Subscribers.FindByEmail(context.Background(), "reader@example.com")
		require.NoError(t, err)
		assert.Equal(t, nl.StatusPending, sub.Status)
	})

	t.Run("query token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.get("/newsletter/unsubscribe?token=abc")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `action="/newsletter/unsubscribe/abc"`)
	})

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.get("/newsletter/unsubscribe")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("one-click post unsubscribes", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		confirm, cancel := env.subscribe(t, "reader@example.com")
		require.Equal(t, http.StatusOK, env.get("/newsletter/confirm/"+confirm).Code)

		rec := env.postForm("/newsletter/unsubscribe/"+cancel, url.Values{"List-Unsubscribe": {"One-Click"}})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unsubscribed")

		sub, err := env.stores.Subscribers.FindByEmail(context.Background(), "reader@example.com")
		require.NoError(t, err)
		assert.Equal(t, nl.StatusUnsubscribed, sub.Status)
	})
}

func TestSend(t *testing.T) {
	fields := map[string]string{"subject": "Issue 1"}

	t.Run("requires credentials", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.serve(multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), "Basic")
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF)
		req.SetBasicAuth("admin", "wrong")

		rec := env.serve(req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("locked when admin credentials are unset", func(t *testing.T) {
		env := newTestEnv(t, withConfig(func(cfg *config.Config) { cfg.Admin = config.AdminConfig{} }))
		req := multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF)
		req.SetBasicAuth("", "")

		rec := env.serve(req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("broadcasts to active subscribers", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailSucceeds()
		env.blobs.On("ObjectKey", "issue-1.pdf").Return("newsletters/k/issue-1.pdf")
		env.blobs.On("Put", mock.Anything, "newsletters/k/issue-1.pdf", testutils.TestPDF, mock.Anything).Return(nil)
		env.addSubscriber(t, "a@example.com", nl.StatusActive)
		env.addSubscriber(t, "b@example.com", nl.StatusActive)
		env.addSubscriber(t, "p@example.com", nl.StatusPending)

		rec := env.admin(multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[map[string]any](t, rec)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, float64(2), body["sent"])
		assert.Equal(t, float64(0), body["failedCount"])
		assert.Empty(t, body["failed"])
		assert.Len(t, env.mailer.Messages(), 2)
	})

	t.Run("reports failed recipients", func(t *testing.T) {
		env := newTestEnv(t)
		env.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg *mail.Message) bool {
			return msg.To[0] == "bad@example.com"
		})).Return(errors.New("mailbox unavailable"))
		env.mailSucceeds()
		env.blobs.On("ObjectKey", mock.Anything).Return("newsletters/k/issue-1.pdf")
		env.blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		env.addSubscriber(t, "bad@example.com", nl.StatusActive)
		env.addSubscriber(t, "good@example.com", nl.StatusActive)

		rec := env.admin(multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Sent        int                  `json:"sent"`
			FailedCount int                  `json:"failedCount"`
			Failed      []nl.FailedRecipient `json:"failed"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Sent)
		assert.Equal(t, 1, body.FailedCount)
		require.Len(t, body.Failed, 1)
		assert.Equal(t, "bad@example.com", body.Failed[0].Email)
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.admin(multipartRequest(t, fields, "", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "file is required", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("disallowed extension", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.admin(multipartRequest(t, fields, "issue.exe", []byte("MZ")))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Error, "file type not allowed")
	})

	t.Run("missing subject", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.admin(multipartRequest(t, map[string]string{"subject": "  "}, "issue-1.pdf", testutils.TestPDF))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "subject is required", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("oversized file", func(t *testing.T) {
		env := newTestEnv(t, withConfig(func(cfg *config.Config) { cfg.Newsletter.MaxAttachmentSize = 8 }))

		rec := env.admin(multipartRequest(t, fields, "issue-1.pdf", testutils.TestPDF))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Error, "exceeds")
	})

	t.Run("test recipient must be active", func(t *testing.T) {
		env := newTestEnv(t)
		env.addSubscriber(t, "p@example.com", nl.StatusPending)

		rec := env.admin(multipartRequest(t, map[string]string{"subject": "Issue 1", "testEmail": "p@example.com"}, "issue-1.pdf", testutils.TestPDF))

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.False(t, decode[ErrorResponse](t, rec).OK)
	})
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.addSubscriber(t, "a@example.com", nl.StatusActive)
	env.addSubscriber(t, "p@example.com", nl.StatusPending)

	assert.Equal(t, http.StatusUnauthorized, env.get("/newsletter/stats").Code)

	rec := env.admin(httptest.NewRequest(http.MethodGet, "/newsletter/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatsResponse{OK: true, ActiveCount: 1}, decode[StatsResponse](t, rec))
}

func TestAdminPage(t *testing.T) {
	env := newTestEnv(t)
	env.addSubscriber(t, "a@example.com", nl.StatusActive)

	assert.Equal(t, http.StatusUnauthorized, env.get("/admin/newsletter").Code)

	rec := env.admin(httptest.NewRequest(http.MethodGet, "/admin/newsletter", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "1 active subscriber.")
	assert.Contains(t, out, `accept=".pdf,.docx"`)
	assert.Contains(t, out, "max 10 MB")
	assert.NotContains(t, out, `name="_csrf"`)
}

func TestAdminCSRF(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *config.Config) {
		cfg.Admin.CSRF = config.CSRFConfig{
			Enabled:        true,
			TokenLength:    32,
			TokenLookup:    "header:X-CSRF-Token,form:_csrf",
			CookieName:     "_csrf",
			CookiePath:     "/",
			CookieSameSite: "strict",
		}
	}))
	env.mailSucceeds()
	env.blobs.On("ObjectKey", "issue-1.pdf").Return("newsletters/k/issue-1.pdf")
	env.blobs.On("Put", mock.Anything, "newsletters/k/issue-1.pdf", testutils.TestPDF, mock.Anything).Return(nil)
	env.addSubscriber(t, "a@example.com", nl.StatusActive)

	page := env.admin(httptest.NewRequest(http.MethodGet, "/admin/newsletter", nil))
	require.Equal(t, http.StatusOK, page.Code)
	cookies := page.Result().Cookies()
	require.Len(t, cookies, 1)
	token := cookies[0].Value
	assert.Contains(t, page.Body.String(), `name="_csrf" value="`+token+`"`)

	t.Run("send without token is rejected", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"subject": "Issue 1"}, "issue-1.pdf", testutils.TestPDF)
		req.AddCookie(cookies[0])

		rec := env.admin(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("send with form token", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"subject": "Issue 1", "_csrf": token}, "issue-1.pdf", testutils.TestPDF)
		req.AddCookie(cookies[0])

		rec := env.admin(req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, env.mailer.Messages(), 1)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{OK: true, Database: "up"}, decode[HealthResponse](t, rec))

	env.pingErr = errors.New("connection refused")
	rec = env.get("/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, HealthResponse{OK: false, Database: "down"}, decode[HealthResponse](t, rec))
}

func TestOpenAPIRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	paths := body["paths"].(map[string]any)
	for _, path := range []string{"/subscribe", "/newsletter/confirm", "/newsletter/confirm/{token}", "/newsletter/send", "/newsletter/stats", "/healthz"} {
		assert.Contains(t, paths, path)
	}

	rec = env.get("/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")
}

func TestDocs_Valid(t *testing.T) {
	require.NoError(t, Docs(testutils.GetTestConfig()).Validate(context.Background()))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		kind    nl.Kind
		status  int
		message string
	}{
		{nl.KindValidation, http.StatusBadRequest, "boom"},
		{nl.KindInvalidToken, http.StatusBadRequest, "invalid link"},
		{nl.KindExpired, http.StatusGone, "expired"},
		{nl.KindForbidden, http.StatusForbidden, "boom"},
		{nl.KindRecipientNotEligible, http.StatusConflict, "boom"},
		{nl.KindStore, http.StatusInternalServerError, "boom"},
		{nl.KindConfig, http.StatusInternalServerError, "boom"},
		{nl.KindMail, http.StatusBadGateway, "boom"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			status, message := errorStatus(&nl.Error{Kind: tt.kind, Message: "boom"})
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, message)
		})
	}

	t.Run("untyped error", func(t *testing.T) {
		status, message := errorStatus(errors.New("secret detail"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "internal error", message)
	})
}
