package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// MailClient is the subset of *gomail.Client used for delivery.
type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPService delivers messages through an SMTP relay.
type SMTPService struct {
	config   *config.MailConfig
	client   MailClient
	composer composer
	logger   *logging.Service
}

func NewSMTPService(cfg *config.MailConfig, logger *logging.Service) (*SMTPService, error) {
	logger.Info("initializing SMTP mail service",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("encryption", cfg.Encryption),
		zap.String("from_address", cfg.FromAddress))

	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	clientOpts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}

	switch cfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, gomail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, gomail.WithTLSPortPolicy(gomail.NoTLS))
	default:
		clientOpts = append(clientOpts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}

	client, err := gomail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		logger.Error("failed to create mail client", zap.Error(err), zap.String("host", cfg.Host))
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewSMTPServiceWithClient(cfg, logger, client)
}

func NewSMTPServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client MailClient) (*SMTPService, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}
	return &SMTPService{
		config:   cfg,
		client:   client,
		composer: composer{fromAddress: cfg.FromAddress, fromName: cfg.FromName},
		logger:   logger,
	}, nil
}

func (s *SMTPService) Send(ctx context.Context, msg *Message) error {
	m, err := s.composer.compose(msg)
	if err != nil {
		return err
	}

	startTime := time.Now()
	err = s.client.DialAndSendWithContext(ctx, m)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("failed to send email",
			zap.Error(err),
			zap.Strings("recipients", msg.To),
			zap.Duration("attempt_duration", duration))
		return err
	}

	s.logger.Debug("email sent",
		zap.Strings("recipients", msg.To),
		zap.String("subject", msg.Subject),
		zap.Duration("send_duration", duration))
	return nil
}
