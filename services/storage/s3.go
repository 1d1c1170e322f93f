package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

// ObjectAPI is the subset of *s3.Client used for uploads.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the subset of *s3.PresignClient used for download links.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps newsletter attachments in a bucket and hands out
// time-limited download links for them.
type S3Store struct {
	objects   ObjectAPI
	presigner PresignAPI
	bucket    string
	prefix    string
	logger    *logging.Service
}

func NewS3Store(ctx context.Context, cfg *config.StorageConfig, logger *logging.Service) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	logger.Info("initialized object storage",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint))

	return NewS3StoreWithClients(cfg, logger, client, s3.NewPresignClient(client)), nil
}

func NewS3StoreWithClients(cfg *config.StorageConfig, logger *logging.Service, objects ObjectAPI, presigner PresignAPI) *S3Store {
	return &S3Store{
		objects:   objects,
		presigner: presigner,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		logger:    logger,
	}
}

// ObjectKey builds a collision-free key for filename under the configured
// prefix.
func (s *S3Store) ObjectKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return s.prefix + uuid.NewString() + "/" + name
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("failed to upload object", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Info("uploaded object", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to sign download URL for %s: %w", key, err)
	}
	return req.URL, nil
}
