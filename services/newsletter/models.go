package newsletter

import (
	"time"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusActive       Status = "active"
	StatusUnsubscribed Status = "unsubscribed"
)

type TokenType string

const (
	TokenConfirm     TokenType = "confirm"
	TokenUnsubscribe TokenType = "unsubscribe"
)

// Subscriber is keyed by its normalized (trimmed, lowercased) email. Rows are
// never deleted; unsubscribing only changes Status.
type Subscriber struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	Email         string     `json:"email" gorm:"size:320;uniqueIndex;not null"`
	Status        Status     `json:"status" gorm:"size:16;index;not null"`
	SubscribedAt  time.Time  `json:"subscribed_at" gorm:"not null"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	WelcomeSentAt *time.Time `json:"welcome_sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "newsletter_subscribers"
}

// Token is a single-use capability granted to a subscriber. Only the SHA-256
// of the raw value is stored.
type Token struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	SubscriberID uint        `json:"subscriber_id" gorm:"index;not null"`
	Subscriber   *Subscriber `json:"-" gorm:"foreignKey:SubscriberID;constraint:OnDelete:CASCADE"`
	Type         TokenType   `json:"type" gorm:"size:16;index;not null"`
	TokenHash    string      `json:"-" gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty" gorm:"index"`
	UsedAt       *time.Time  `json:"used_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (Token) TableName() string {
	return "newsletter_tokens"
}

func (t *Token) IsUsed() bool {
	return t.UsedAt != nil
}

func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

func (t *Token) IsValid(now time.Time) bool {
	return !t.IsUsed() && !t.IsExpired(now)
}

// Issue records an attachment that was broadcast. At most one row has
// IsLatest set.
type Issue struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Subject     string    `json:"subject" gorm:"size:255;not null"`
	Filename    string    `json:"filename" gorm:"size:255;not null"`
	StoragePath string    `json:"storage_path" gorm:"size:512;not null"`
	MimeType    string    `json:"mime_type" gorm:"size:127;not null"`
	IsLatest    bool      `json:"is_latest" gorm:"index;not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Issue) TableName() string {
	return "newsletter_issues"
}

// Models lists everything that needs migrating.
func Models() []any {
	return []any{&Subscriber{}, &Token{}, &Issue{}}
}
