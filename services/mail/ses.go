package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

// SESAPI is the subset of *sesv2.Client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESService delivers messages through the AWS SES v2 API as raw MIME, which
// keeps attachments and custom headers intact.
type SESService struct {
	client   SESAPI
	composer composer
	logger   *logging.Service
}

func NewSESService(ctx context.Context, cfg *config.MailConfig, logger *logging.Service) (*SESService, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	region := cfg.SESRegion
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.SESAccessKey != "" && cfg.SESSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("initializing SES mail service",
		zap.String("region", region),
		zap.String("from_address", cfg.FromAddress))

	return NewSESServiceWithClient(cfg, logger, sesv2.NewFromConfig(awsCfg)), nil
}

func NewSESServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client SESAPI) *SESService {
	return &SESService{
		client:   client,
		composer: composer{fromAddress: cfg.FromAddress, fromName: cfg.FromName},
		logger:   logger,
	}
}

func (s *SESService) Send(ctx context.Context, msg *Message) error {
	raw, err := s.composer.raw(msg)
	if err != nil {
		return err
	}

	startTime := time.Now()
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		Destination: &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("failed to send email via SES",
			zap.Error(err),
			zap.Strings("recipients", msg.To),
			zap.Duration("attempt_duration", duration))
		return err
	}

	s.logger.Debug("email sent via SES",
		zap.Strings("recipients", msg.To),
		zap.String("message_id", aws.ToString(out.MessageId)),
		zap.Duration("send_duration", duration))
	return nil
}
