package mail

import (
	"context"

	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideMailer builds the configured driver. An unconfigured sender address
// yields a nil Mailer so the site still starts; operations that need mail
// then fail with a configuration error.
func ProvideMailer(cfg *config.Config, logger *logging.Service) (Mailer, error) {
	if cfg.Mail.FromAddress == "" {
		logger.Warn("MAIL_FROM_ADDRESS not set, outbound mail disabled")
		return nil, nil
	}

	if cfg.Mail.Driver == "ses" {
		svc, err := NewSESService(context.Background(), &cfg.Mail, logger)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}

	svc, err := NewSMTPService(&cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func ProvideTemplates(cfg *config.Config, logger *logging.Service) (*Templates, error) {
	templates, err := NewTemplates(cfg.Mail.TemplatesDir, logger)
	if err != nil {
		logger.Error("failed to load mail templates", zap.Error(err))
		return nil, err
	}
	return templates, nil
}

var Module = fx.Options(
	fx.Provide(ProvideMailer),
	fx.Provide(ProvideTemplates),
)
