package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig        `envPrefix:"APP_"`
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Log        LogConfig        `envPrefix:"LOG_"`
	Database   DatabaseConfig   `envPrefix:"DATABASE_"`
	Mail       MailConfig       `envPrefix:"MAIL_"`
	Storage    StorageConfig    `envPrefix:"STORAGE_"`
	Newsletter NewsletterConfig `envPrefix:"NEWSLETTER_"`
	Admin      AdminConfig      `envPrefix:"ADMIN_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Templates  TemplatesConfig  `envPrefix:"TEMPLATES_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"folio"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"folio.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// MailConfig covers both outbound drivers. Only the fields of the selected
// driver are read.
type MailConfig struct {
	Driver       string `env:"DRIVER" envDefault:"smtp"`
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"tls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
	SESRegion    string `env:"SES_REGION" envDefault:"us-east-1"`
	SESAccessKey string `env:"SES_ACCESS_KEY"`
	SESSecretKey string `env:"SES_SECRET_KEY"`
}

type StorageConfig struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	PathStyle bool   `env:"PATH_STYLE" envDefault:"false"`
	Prefix    string `env:"PREFIX" envDefault:"newsletters/"`
}

type NewsletterConfig struct {
	TokenLength         int           `env:"TOKEN_LENGTH" envDefault:"32"`
	ConfirmExpiry       time.Duration `env:"CONFIRM_EXPIRY" envDefault:"24h"`
	UnsubscribeExpiry   time.Duration `env:"UNSUBSCRIBE_EXPIRY" envDefault:"8760h"`
	DownloadURLExpiry   time.Duration `env:"DOWNLOAD_URL_EXPIRY" envDefault:"168h"`
	MaxAttempts         int           `env:"MAX_ATTEMPTS" envDefault:"4"`
	BaseBackoff         time.Duration `env:"BASE_BACKOFF" envDefault:"700ms"`
	SendDelay           time.Duration `env:"SEND_DELAY" envDefault:"600ms"`
	MaxSendRate         float64       `env:"MAX_SEND_RATE" envDefault:"0"`
	MaxAttachmentSize   int64         `env:"MAX_ATTACHMENT_SIZE" envDefault:"10485760"`
	AllowedExtensions   []string      `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"pdf,docx"`
	TokenRetention      time.Duration `env:"TOKEN_RETENTION" envDefault:"720h"`
	TokenPurgeInterval  time.Duration `env:"TOKEN_PURGE_INTERVAL" envDefault:"0s"`
	WelcomeEmailEnabled bool          `env:"WELCOME_EMAIL_ENABLED" envDefault:"true"`
}

type AdminConfig struct {
	Username string     `env:"USERNAME"`
	Password string     `env:"PASSWORD"`
	CSRF     CSRFConfig `envPrefix:"CSRF_"`
}

// CSRFConfig guards the admin send form. Off by default so scripted clients
// using basic auth alone keep working.
type CSRFConfig struct {
	Enabled        bool   `env:"ENABLED" envDefault:"false"`
	TokenLength    uint8  `env:"TOKEN_LENGTH" envDefault:"32"`
	TokenLookup    string `env:"TOKEN_LOOKUP" envDefault:"header:X-CSRF-Token,form:_csrf"`
	CookieName     string `env:"COOKIE_NAME" envDefault:"_csrf"`
	CookiePath     string `env:"COOKIE_PATH" envDefault:"/"`
	CookieMaxAge   int    `env:"COOKIE_MAX_AGE" envDefault:"86400"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite string `env:"COOKIE_SAME_SITE" envDefault:"strict"`
}

type RateLimitConfig struct {
	Store           string        `env:"STORE" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	SubscribeRate   int           `env:"SUBSCRIBE_RATE" envDefault:"5"`
	SubscribePeriod time.Duration `env:"SUBSCRIBE_PERIOD" envDefault:"10m"`
	CountMode       CountingMode  `env:"COUNT_MODE" envDefault:"all"`
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type TemplatesConfig struct {
	Dir         string `env:"DIR"`
	Extension   string `env:"EXTENSION" envDefault:".html"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validateMailConfig(&c.Mail); err != nil {
		return err
	}
	if err := validateNewsletterConfig(&c.Newsletter); err != nil {
		return err
	}
	return validateRateLimitConfig(&c.RateLimit)
}

func validateMailConfig(cfg *MailConfig) error {
	switch cfg.Driver {
	case "smtp", "ses":
	default:
		return fmt.Errorf("mail driver must be: smtp or ses (got %q)", cfg.Driver)
	}

	if cfg.Driver == "smtp" && (cfg.Port <= 0 || cfg.Port > 65535) {
		return fmt.Errorf("mail port must be between 1 and 65535")
	}
	return nil
}

func validateNewsletterConfig(cfg *NewsletterConfig) error {
	if cfg.TokenLength < 16 {
		return fmt.Errorf("newsletter token length must be at least 16 bytes")
	}
	if cfg.TokenLength > 128 {
		return fmt.Errorf("newsletter token length cannot exceed 128 bytes")
	}
	if cfg.ConfirmExpiry <= 0 || cfg.UnsubscribeExpiry <= 0 || cfg.DownloadURLExpiry <= 0 {
		return fmt.Errorf("newsletter token and download expiries must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("newsletter max attempts must be at least 1")
	}
	if cfg.BaseBackoff < 0 || cfg.SendDelay < 0 {
		return fmt.Errorf("newsletter backoff and send delay cannot be negative")
	}
	if cfg.MaxSendRate < 0 {
		return fmt.Errorf("newsletter max send rate cannot be negative")
	}
	if cfg.MaxAttachmentSize <= 0 {
		return fmt.Errorf("newsletter max attachment size must be positive")
	}
	if len(cfg.AllowedExtensions) == 0 {
		return fmt.Errorf("newsletter allowed extensions cannot be empty")
	}
	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	return nil
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate limit store must be: memory or redis (got %q)", cfg.Store)
	}

	switch cfg.CountMode {
	case CountAll, CountFailures, CountSuccess:
	default:
		return fmt.Errorf("rate limit count mode must be: all, failures, or success")
	}
	return nil
}
