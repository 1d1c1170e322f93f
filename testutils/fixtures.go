package testutils

import (
	"time"

	"github.com/tech-arch1tect/folio/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test Folio",
			URL:  "http://localhost:8080",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Mail: config.MailConfig{
			Driver:      "smtp",
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "news@example.com",
			FromName:    "Test Folio",
		},
		Storage: config.StorageConfig{
			Bucket: "test-bucket",
			Region: "us-east-1",
			Prefix: "newsletters/",
		},
		Newsletter: config.NewsletterConfig{
			TokenLength:         32,
			ConfirmExpiry:       24 * time.Hour,
			UnsubscribeExpiry:   365 * 24 * time.Hour,
			DownloadURLExpiry:   7 * 24 * time.Hour,
			MaxAttempts:         4,
			BaseBackoff:         700 * time.Millisecond,
			SendDelay:           0,
			MaxAttachmentSize:   10 << 20,
			AllowedExtensions:   []string{"pdf", "docx"},
			TokenRetention:      30 * 24 * time.Hour,
			WelcomeEmailEnabled: true,
		},
		Admin: config.AdminConfig{
			Username: "admin",
			Password: "secret",
		},
		RateLimit: config.RateLimitConfig{
			Store:           "memory",
			SubscribeRate:   5,
			SubscribePeriod: 10 * time.Minute,
			CountMode:       config.CountAll,
		},
	}
}

var TestEmails = struct {
	Valid      string
	Mixed      string
	Normalized string
	Invalid    string
}{
	Valid:      "reader@example.com",
	Mixed:      "  A@Foo.com ",
	Normalized: "a@foo.com",
	Invalid:    "not-an-email",
}

// TestPDF is the smallest body the sender accepts as an attachment.
var TestPDF = []byte("%PDF-1.4\n%test\n")
