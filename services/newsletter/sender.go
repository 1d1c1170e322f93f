package newsletter

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var canonicalMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// SendRequest is one newsletter broadcast. A non-empty TestEmail sends only
// to that subscriber.
type SendRequest struct {
	Subject     string
	Filename    string
	ContentType string
	Content     []byte
	TestEmail   string
}

type FailedRecipient struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// SendResult reports a finished broadcast. Failed recipients do not make the
// broadcast an error; Warnings collect bookkeeping problems after sending.
type SendResult struct {
	Sent        int               `json:"sent"`
	FailedCount int               `json:"failedCount"`
	Failed      []FailedRecipient `json:"failed"`
	Issue       *Issue            `json:"issue,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Sender mails a newsletter issue to active subscribers one at a time.
type Sender struct {
	cfg       config.NewsletterConfig
	appName   string
	baseURL   string
	stores    Stores
	mailer    mail.Mailer
	templates Renderer
	blobs     BlobStore
	logger    *logging.Service
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	retry     RetryPolicy
}

func NewSender(cfg *config.Config, stores Stores, mailer mail.Mailer, templates Renderer, blobs BlobStore, logger *logging.Service, opts ...Option) *Sender {
	o := applyOptions(opts)
	return &Sender{
		cfg:       cfg.Newsletter,
		appName:   cfg.App.Name,
		baseURL:   cfg.App.URL,
		stores:    stores,
		mailer:    mailer,
		templates: templates,
		blobs:     blobs,
		logger:    logger,
		now:       o.now,
		sleep:     o.sleep,
		retry: RetryPolicy{
			MaxAttempts: cfg.Newsletter.MaxAttempts,
			BaseBackoff: cfg.Newsletter.BaseBackoff,
			Classify:    IsRateLimited,
			Sleep:       o.sleep,
		},
	}
}

// Send validates req, resolves recipients and mails each one independently.
// The attachment is recorded as the latest issue only if at least one
// recipient was reached.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if s.mailer == nil || s.templates == nil || s.blobs == nil || s.baseURL == "" {
		return nil, newError(KindConfig, "newsletter sending is not configured", nil)
	}

	recipients, err := s.recipients(ctx, req.TestEmail)
	if err != nil {
		return nil, err
	}

	result := &SendResult{Failed: []FailedRecipient{}}
	limiter := s.limiter()
	started := time.Now()

	for i, recipient := range recipients {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				for _, skipped := range recipients[i:] {
					result.Failed = append(result.Failed, FailedRecipient{Email: skipped.Email, Error: err.Error()})
				}
				break
			}
		}

		if err := s.sendOne(ctx, limiter, &recipient, &req); err != nil {
			s.logger.Error("newsletter delivery failed", zap.String("email", recipient.Email), zap.Error(err))
			result.Failed = append(result.Failed, FailedRecipient{Email: recipient.Email, Error: err.Error()})
			continue
		}
		result.Sent++
	}
	result.FailedCount = len(result.Failed)

	if result.Sent > 0 {
		result.Issue, result.Warnings = s.recordIssue(ctx, &req)
	}

	s.logger.Info("newsletter send finished",
		zap.String("subject", req.Subject),
		zap.Bool("test", req.TestEmail != ""),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.FailedCount),
		zap.Duration("duration", time.Since(started)))

	return result, nil
}

// ActiveCount is the number of subscribers a full send would reach.
func (s *Sender) ActiveCount(ctx context.Context) (int64, error) {
	count, err := s.stores.Subscribers.CountByStatus(ctx, StatusActive)
	if err != nil {
		return 0, storeError("count subscribers", err)
	}
	return count, nil
}

func (s *Sender) validate(req *SendRequest) error {
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return newError(KindValidation, "subject is required", nil)
	}

	req.Filename = path.Base(strings.ReplaceAll(strings.TrimSpace(req.Filename), "\\", "/"))
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(req.Filename), "."))
	if req.Filename == "." || req.Filename == "/" || ext == "" || !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return newError(KindValidation,
			fmt.Sprintf("file type not allowed, allowed types: %s", strings.Join(s.cfg.AllowedExtensions, ", ")), nil)
	}

	if len(req.Content) == 0 {
		return newError(KindValidation, "file is empty", nil)
	}
	if int64(len(req.Content)) > s.cfg.MaxAttachmentSize {
		return newError(KindValidation,
			fmt.Sprintf("file exceeds the %d MB limit", s.cfg.MaxAttachmentSize>>20), nil)
	}

	contentType, err := resolveContentType(ext, req.ContentType)
	if err != nil {
		return err
	}
	req.ContentType = contentType
	return nil
}

func resolveContentType(ext, declared string) (string, error) {
	canonical := canonicalMimeTypes[ext]
	if canonical == "" {
		canonical = mime.TypeByExtension("." + ext)
	}

	mediaType := ""
	if declared != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", newError(KindValidation, "invalid file content type", err)
		}
		mediaType = parsed
	}

	switch {
	case mediaType == "" || mediaType == "application/octet-stream":
		if canonical == "" {
			return "application/octet-stream", nil
		}
		return canonical, nil
	case canonical != "" && mediaType != canonical:
		return "", newError(KindValidation, "file content type does not match its extension", nil)
	default:
		return mediaType, nil
	}
}

func (s *Sender) recipients(ctx context.Context, testEmail string) ([]Subscriber, error) {
	if strings.TrimSpace(testEmail) == "" {
		subs, err := s.stores.Subscribers.ListByStatus(ctx, StatusActive)
		if err != nil {
			return nil, storeError("list subscribers", err)
		}
		return subs, nil
	}

	email, err := NormalizeEmail(testEmail)
	if err != nil {
		return nil, err
	}
	sub, err := s.stores.Subscribers.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindRecipientNotEligible, "recipient is not a subscriber", nil)
	}
	if err != nil {
		return nil, storeError("load test recipient", err)
	}
	if sub.Status != StatusActive {
		return nil, newError(KindRecipientNotEligible, fmt.Sprintf("recipient status is %s", sub.Status), nil)
	}
	return []Subscriber{*sub}, nil
}

// pause waits SendDelay after a recipient is finished, retries included.
func (s *Sender) pause(ctx context.Context) error {
	if s.cfg.SendDelay <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, s.cfg.SendDelay)
}

// limiter caps provider calls per second across attempts and recipients.
func (s *Sender) limiter() *rate.Limiter {
	if s.cfg.MaxSendRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(s.cfg.MaxSendRate), 1)
}

func (s *Sender) sendOne(ctx context.Context, limiter *rate.Limiter, sub *Subscriber, req *SendRequest) error {
	now := s.now()
	raw, err := issueToken(ctx, s.stores.Tokens, s.cfg.TokenLength, sub.ID, TokenUnsubscribe, now.Add(s.cfg.UnsubscribeExpiry))
	if err != nil {
		return err
	}
	unsubscribeURL, err := url.JoinPath(s.baseURL, "newsletter", "unsubscribe", raw)
	if err != nil {
		return err
	}

	content, err := s.templates.Render("newsletter", map[string]any{
		"AppName":        s.appName,
		"Subject":        req.Subject,
		"Filename":       req.Filename,
		"UnsubscribeURL": unsubscribeURL,
	})
	if err != nil {
		return err
	}

	msg := &mail.Message{
		To:      []string{sub.Email},
		Subject: req.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
		Headers: unsubscribeHeaders(unsubscribeURL),
		Attachments: []mail.Attachment{{
			Filename:    req.Filename,
			ContentType: req.ContentType,
			Data:        req.Content,
		}},
	}

	attempts, err := s.retry.Do(ctx, s.logger, func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		return s.mailer.Send(ctx, msg)
	})
	if err != nil {
		return err
	}
	if attempts > 1 {
		s.logger.Info("newsletter delivered after retry", zap.String("email", sub.Email), zap.Int("attempts", attempts))
	}
	return nil
}

func (s *Sender) recordIssue(ctx context.Context, req *SendRequest) (*Issue, []string) {
	key := s.blobs.ObjectKey(req.Filename)
	if err := s.blobs.Put(ctx, key, req.Content, req.ContentType); err != nil {
		s.logger.Error("failed to store newsletter attachment", zap.String("key", key), zap.Error(err))
		return nil, []string{"attachment was sent but could not be stored: " + err.Error()}
	}

	issue := &Issue{
		Subject:     req.Subject,
		Filename:    req.Filename,
		StoragePath: key,
		MimeType:    req.ContentType,
	}
	if err := s.stores.Issues.PublishLatest(ctx, issue); err != nil {
		s.logger.Error("failed to record latest issue", zap.String("key", key), zap.Error(err))
		return nil, []string{"attachment was sent but the latest issue was not recorded: " + err.Error()}
	}
	return issue, nil
}
