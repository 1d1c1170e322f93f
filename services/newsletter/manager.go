package newsletter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	"go.uber.org/zap"
)

// Outcome is the status reported to the caller of a subscription operation.
type Outcome string

const (
	OutcomePending              Outcome = "pending"
	OutcomeActive               Outcome = "active"
	OutcomeResent               Outcome = "resent"
	OutcomeResubscribed         Outcome = "resubscribed"
	OutcomeConfirmed            Outcome = "confirmed"
	OutcomeAlreadyConfirmed     Outcome = "already_confirmed"
	OutcomeConfirmedNoWelcome   Outcome = "confirmed_no_welcome"
	OutcomeConfirmedWithWarning Outcome = "confirmed_with_warning"
	OutcomeUnsubscribed         Outcome = "unsubscribed"
	OutcomeCanceled             Outcome = "canceled"
	OutcomeAlreadyDone          Outcome = "already_done"
)

// Renderer renders a named email. *mail.Templates implements it.
type Renderer interface {
	Render(name string, data any) (*mail.Content, error)
}

// BlobStore persists issue attachments and signs download links for them.
// *storage.S3Store implements it.
type BlobStore interface {
	ObjectKey(filename string) string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Option func(*options)

type options struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep replaces the sleep used for retry backoff and the pause between
// newsletter recipients.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now, sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Manager runs the double opt-in lifecycle: subscribe, confirm, unsubscribe.
type Manager struct {
	cfg       config.NewsletterConfig
	appName   string
	baseURL   string
	stores    Stores
	mailer    mail.Mailer
	templates Renderer
	blobs     BlobStore
	logger    *logging.Service
	now       func() time.Time
}

// NewManager wires a Manager. mailer, templates and blobs may be nil; the
// operations that need them then fail with a configuration error or skip the
// optional step.
func NewManager(cfg *config.Config, stores Stores, mailer mail.Mailer, templates Renderer, blobs BlobStore, logger *logging.Service, opts ...Option) *Manager {
	o := applyOptions(opts)
	return &Manager{
		cfg:       cfg.Newsletter,
		appName:   cfg.App.Name,
		baseURL:   cfg.App.URL,
		stores:    stores,
		mailer:    mailer,
		templates: templates,
		blobs:     blobs,
		logger:    logger,
		now:       o.now,
	}
}

// Subscribe records email as a pending subscriber without sending anything.
func (m *Manager) Subscribe(ctx context.Context, rawEmail string) (Outcome, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return "", err
	}

	sub, created, err := m.stores.Subscribers.GetOrCreate(ctx, email, m.now())
	if err != nil {
		return "", storeError("save subscriber", err)
	}
	if created {
		m.logger.Info("subscriber created", zap.String("email", email))
		return OutcomePending, nil
	}

	if sub.Status == StatusUnsubscribed {
		return "", newError(KindForbidden, "email is unsubscribed, resubscribe to receive the newsletter", nil)
	}
	return Outcome(sub.Status), nil
}

// SubscribeWithConfirmation subscribes email and mails it a confirmation link
// and a cancel link. An unsubscribed address is moved back to pending.
func (m *Manager) SubscribeWithConfirmation(ctx context.Context, rawEmail string) (Outcome, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return "", err
	}
	if err := m.requireMail(); err != nil {
		return "", err
	}

	now := m.now()
	sub, created, err := m.stores.Subscribers.GetOrCreate(ctx, email, now)
	if err != nil {
		return "", storeError("save subscriber", err)
	}

	outcome := OutcomePending
	if !created {
		switch sub.Status {
		case StatusActive:
			return OutcomeActive, nil
		case StatusUnsubscribed:
			if err := m.stores.Subscribers.Resubscribe(ctx, sub.ID, now); err != nil {
				return "", storeError("resubscribe", err)
			}
			outcome = OutcomeResubscribed
		default:
			outcome = OutcomeResent
		}
	}

	confirmToken, err := issueToken(ctx, m.stores.Tokens, m.cfg.TokenLength, sub.ID, TokenConfirm, now.Add(m.cfg.ConfirmExpiry))
	if err != nil {
		return "", err
	}
	cancelToken, err := issueToken(ctx, m.stores.Tokens, m.cfg.TokenLength, sub.ID, TokenUnsubscribe, now.Add(m.cfg.UnsubscribeExpiry))
	if err != nil {
		return "", err
	}

	confirmURL, err := url.JoinPath(m.baseURL, "newsletter", "confirm", confirmToken)
	if err != nil {
		return "", newError(KindConfig, "invalid APP_URL", err)
	}
	cancelURL, err := url.JoinPath(m.baseURL, "newsletter", "unsubscribe", cancelToken)
	if err != nil {
		return "", newError(KindConfig, "invalid APP_URL", err)
	}

	content, err := m.templates.Render("confirm", map[string]any{
		"AppName":    m.appName,
		"Email":      email,
		"ConfirmURL": confirmURL,
		"CancelURL":  cancelURL,
		"ExpiresIn":  humanDuration(m.cfg.ConfirmExpiry),
	})
	if err != nil {
		return "", newError(KindConfig, "failed to render confirmation email", err)
	}

	err = m.mailer.Send(ctx, &mail.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Confirm your %s newsletter subscription", m.appName),
		HTML:    content.HTML,
		Text:    content.Text,
	})
	if err != nil {
		m.logger.Error("failed to send confirmation email", zap.String("email", email), zap.Error(err))
		return "", newError(KindMail, "failed to send confirmation email", err)
	}

	m.logger.Info("confirmation email sent", zap.String("email", email), zap.String("status", string(outcome)))
	return outcome, nil
}

// Confirm activates the subscriber owning a confirm token. Reusing a consumed
// token reports already_confirmed. Failures after activation downgrade the
// outcome instead of failing the call.
func (m *Manager) Confirm(ctx context.Context, rawToken string) (Outcome, error) {
	now := m.now()

	token, err := m.lookupToken(ctx, rawToken, TokenConfirm)
	if err != nil {
		return "", err
	}
	if token.IsUsed() {
		return OutcomeAlreadyConfirmed, nil
	}
	if token.IsExpired(now) {
		return "", newError(KindExpired, "expired", nil)
	}

	sub, err := m.tokenOwner(ctx, token)
	if err != nil {
		return "", err
	}

	switch sub.Status {
	case StatusUnsubscribed:
		return "", newError(KindForbidden, "subscription was cancelled, subscribe again to confirm", nil)
	case StatusActive:
		m.consume(ctx, token, now)
		return OutcomeAlreadyConfirmed, nil
	}

	if err := m.stores.Subscribers.Activate(ctx, sub.ID, now); err != nil {
		return "", storeError("activate subscriber", err)
	}
	m.logger.Info("subscriber confirmed", zap.String("email", sub.Email))

	outcome := OutcomeConfirmed
	if !m.consume(ctx, token, now) {
		outcome = OutcomeConfirmedWithWarning
	}

	if sub.WelcomeSentAt != nil || !m.cfg.WelcomeEmailEnabled {
		return outcome, nil
	}
	if err := m.sendWelcome(ctx, sub); err != nil {
		m.logger.Warn("welcome email not sent", zap.String("email", sub.Email), zap.Error(err))
		if outcome == OutcomeConfirmed {
			outcome = OutcomeConfirmedNoWelcome
		}
	}
	return outcome, nil
}

// Unsubscribe moves the owner of an unsubscribe token to unsubscribed. The
// outcome is canceled when the subscriber never confirmed.
func (m *Manager) Unsubscribe(ctx context.Context, rawToken string) (Outcome, error) {
	now := m.now()

	token, err := m.lookupToken(ctx, rawToken, TokenUnsubscribe)
	if err != nil {
		return "", err
	}
	if token.IsUsed() {
		return OutcomeAlreadyDone, nil
	}
	if token.IsExpired(now) {
		return "", newError(KindExpired, "expired", nil)
	}

	sub, err := m.tokenOwner(ctx, token)
	if err != nil {
		return "", err
	}

	var outcome Outcome
	switch sub.Status {
	case StatusUnsubscribed:
		m.consume(ctx, token, now)
		return OutcomeAlreadyDone, nil
	case StatusPending:
		outcome = OutcomeCanceled
	default:
		outcome = OutcomeUnsubscribed
	}

	if err := m.stores.Subscribers.SetStatus(ctx, sub.ID, StatusUnsubscribed); err != nil {
		return "", storeError("unsubscribe", err)
	}
	m.consume(ctx, token, now)

	m.logger.Info("subscriber unsubscribed", zap.String("email", sub.Email), zap.String("status", string(outcome)))
	return outcome, nil
}

// PurgeExpiredTokens deletes tokens that can no longer be used.
func (m *Manager) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	purged, err := m.stores.Tokens.PurgeStale(ctx, m.now(), m.cfg.TokenRetention)
	if err != nil {
		return 0, storeError("purge tokens", err)
	}
	if purged > 0 {
		m.logger.Info("purged stale newsletter tokens", zap.Int64("count", purged))
	}
	return purged, nil
}

// ConfirmationEnabled reports whether SubscribeWithConfirmation can send mail.
func (m *Manager) ConfirmationEnabled() bool {
	return m.requireMail() == nil
}

func (m *Manager) requireMail() error {
	if m.mailer == nil || m.templates == nil {
		return newError(KindConfig, "newsletter mail is not configured", nil)
	}
	if m.baseURL == "" {
		return newError(KindConfig, "APP_URL is not configured", nil)
	}
	return nil
}

func (m *Manager) lookupToken(ctx context.Context, raw string, tokenType TokenType) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newError(KindInvalidToken, "invalid link", nil)
	}

	token, err := m.stores.Tokens.FindByHash(ctx, HashToken(raw), tokenType)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindInvalidToken, "invalid link", nil)
	}
	if err != nil {
		return nil, storeError("look up token", err)
	}
	return token, nil
}

func (m *Manager) tokenOwner(ctx context.Context, token *Token) (*Subscriber, error) {
	sub, err := m.stores.Subscribers.FindByID(ctx, token.SubscriberID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindInvalidToken, "invalid link", nil)
	}
	if err != nil {
		return nil, storeError("load subscriber", err)
	}
	return sub, nil
}

// consume marks token used and reports whether the bookkeeping succeeded.
func (m *Manager) consume(ctx context.Context, token *Token, now time.Time) bool {
	consumed, err := m.stores.Tokens.MarkUsed(ctx, token.ID, now)
	if err != nil {
		m.logger.Warn("failed to mark token used", zap.Uint("token_id", token.ID), zap.Error(err))
		return false
	}
	if !consumed {
		m.logger.Debug("token already consumed concurrently", zap.Uint("token_id", token.ID))
	}
	return true
}

func (m *Manager) sendWelcome(ctx context.Context, sub *Subscriber) error {
	if err := m.requireMail(); err != nil {
		return err
	}

	now := m.now()
	raw, err := issueToken(ctx, m.stores.Tokens, m.cfg.TokenLength, sub.ID, TokenUnsubscribe, now.Add(m.cfg.UnsubscribeExpiry))
	if err != nil {
		return err
	}
	unsubscribeURL, err := url.JoinPath(m.baseURL, "newsletter", "unsubscribe", raw)
	if err != nil {
		return err
	}

	data := map[string]any{
		"AppName":        m.appName,
		"UnsubscribeURL": unsubscribeURL,
	}
	if issue := m.latestIssue(ctx); issue != nil {
		if link, err := m.blobs.SignedURL(ctx, issue.StoragePath, m.cfg.DownloadURLExpiry); err != nil {
			m.logger.Warn("failed to sign latest issue URL", zap.String("path", issue.StoragePath), zap.Error(err))
		} else {
			data["IssueURL"] = link
			data["IssueSubject"] = issue.Subject
			data["IssueURLExpiresIn"] = humanDuration(m.cfg.DownloadURLExpiry)
		}
	}

	content, err := m.templates.Render("welcome", data)
	if err != nil {
		return err
	}
	err = m.mailer.Send(ctx, &mail.Message{
		To:      []string{sub.Email},
		Subject: fmt.Sprintf("Welcome to the %s newsletter", m.appName),
		HTML:    content.HTML,
		Text:    content.Text,
		Headers: unsubscribeHeaders(unsubscribeURL),
	})
	if err != nil {
		return err
	}

	if _, err := m.stores.Subscribers.MarkWelcomeSent(ctx, sub.ID, m.now()); err != nil {
		m.logger.Warn("failed to record welcome email", zap.String("email", sub.Email), zap.Error(err))
	}
	return nil
}

func (m *Manager) latestIssue(ctx context.Context) *Issue {
	if m.blobs == nil {
		return nil
	}
	issue, err := m.stores.Issues.Latest(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("failed to load latest issue", zap.Error(err))
		}
		return nil
	}
	return issue
}

func issueToken(ctx context.Context, tokens TokenStore, length int, subscriberID uint, tokenType TokenType, expiresAt time.Time) (string, error) {
	raw, err := GenerateToken(length)
	if err != nil {
		return "", newError(KindStore, "failed to generate token", err)
	}

	token := &Token{
		SubscriberID: subscriberID,
		Type:         tokenType,
		TokenHash:    HashToken(raw),
		ExpiresAt:    &expiresAt,
	}
	if err := tokens.Create(ctx, token); err != nil {
		return "", storeError("save token", err)
	}
	return raw, nil
}

// unsubscribeHeaders advertise one-click unsubscribe to mail clients.
func unsubscribeHeaders(unsubscribeURL string) map[string]string {
	return map[string]string{
		"List-Unsubscribe":      "<" + unsubscribeURL + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	day := 24 * time.Hour
	switch {
	case d >= 2*day && d%day == 0:
		return plural(int64(d/day), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	default:
		return d.String()
	}
}
