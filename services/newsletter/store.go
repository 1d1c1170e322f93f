package newsletter

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriberStore interface {
	FindByEmail(ctx context.Context, email string) (*Subscriber, error)
	FindByID(ctx context.Context, id uint) (*Subscriber, error)
	// GetOrCreate inserts a pending subscriber unless one already exists for
	// email, in which case the existing row is returned with created=false.
	GetOrCreate(ctx context.Context, email string, now time.Time) (sub *Subscriber, created bool, err error)
	SetStatus(ctx context.Context, id uint, status Status) error
	Resubscribe(ctx context.Context, id uint, now time.Time) error
	Activate(ctx context.Context, id uint, now time.Time) error
	// MarkWelcomeSent sets welcome_sent_at only if it is still unset and
	// reports whether it did.
	MarkWelcomeSent(ctx context.Context, id uint, now time.Time) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]Subscriber, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)
}

type TokenStore interface {
	Create(ctx context.Context, token *Token) error
	FindByHash(ctx context.Context, hash string, tokenType TokenType) (*Token, error)
	// MarkUsed sets used_at only if the token is still unused and reports
	// whether this call consumed it.
	MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error)
	PurgeStale(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

type IssueStore interface {
	Latest(ctx context.Context) (*Issue, error)
	PublishLatest(ctx context.Context, issue *Issue) error
}

// Stores groups the three persistence dependencies.
type Stores struct {
	Subscribers SubscriberStore
	Tokens      TokenStore
	Issues      IssueStore
}

func NewGormStores(db *gorm.DB) Stores {
	return Stores{
		Subscribers: &GormSubscriberStore{db: db},
		Tokens:      &GormTokenStore{db: db},
		Issues:      &GormIssueStore{db: db},
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type GormSubscriberStore struct {
	db *gorm.DB
}

func NewGormSubscriberStore(db *gorm.DB) *GormSubscriberStore {
	return &GormSubscriberStore{db: db}
}

func (s *GormSubscriberStore) FindByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var sub Subscriber
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormSubscriberStore) FindByID(ctx context.Context, id uint) (*Subscriber, error) {
	var sub Subscriber
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormSubscriberStore) GetOrCreate(ctx context.Context, email string, now time.Time) (*Subscriber, bool, error) {
	sub := &Subscriber{
		Email:        email,
		Status:       StatusPending,
		SubscribedAt: now,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(sub)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return sub, true, nil
	}

	existing, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *GormSubscriberStore) SetStatus(ctx context.Context, id uint, status Status) error {
	return s.update(ctx, id, map[string]any{"status": status})
}

func (s *GormSubscriberStore) Resubscribe(ctx context.Context, id uint, now time.Time) error {
	return s.update(ctx, id, map[string]any{"status": StatusPending, "subscribed_at": now})
}

func (s *GormSubscriberStore) Activate(ctx context.Context, id uint, now time.Time) error {
	return s.update(ctx, id, map[string]any{"status": StatusActive, "confirmed_at": now})
}

func (s *GormSubscriberStore) update(ctx context.Context, id uint, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&Subscriber{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormSubscriberStore) MarkWelcomeSent(ctx context.Context, id uint, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Subscriber{}).
		Where("id = ? AND welcome_sent_at IS NULL", id).
		Update("welcome_sent_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormSubscriberStore) ListByStatus(ctx context.Context, status Status) ([]Subscriber, error) {
	var subs []Subscriber
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *GormSubscriberStore) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Subscriber{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type GormTokenStore struct {
	db *gorm.DB
}

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) Create(ctx context.Context, token *Token) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *GormTokenStore) FindByHash(ctx context.Context, hash string, tokenType TokenType) (*Token, error) {
	var token Token
	if err := s.db.WithContext(ctx).Where("token_hash = ? AND type = ?", hash, tokenType).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (s *GormTokenStore) MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Token{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// PurgeStale deletes tokens that expired unused, and used tokens older than
// retention.
func (s *GormTokenStore) PurgeStale(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("(used_at IS NULL AND expires_at IS NOT NULL AND expires_at < ?) OR (used_at IS NOT NULL AND used_at < ?)",
			now, now.Add(-retention)).
		Delete(&Token{})
	return result.RowsAffected, result.Error
}

type GormIssueStore struct {
	db *gorm.DB
}

func NewGormIssueStore(db *gorm.DB) *GormIssueStore {
	return &GormIssueStore{db: db}
}

func (s *GormIssueStore) Latest(ctx context.Context) (*Issue, error) {
	var issue Issue
	if err := s.db.WithContext(ctx).Where("is_latest = ?", true).Order("id DESC").First(&issue).Error; err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}

// PublishLatest demotes the current latest issue and inserts issue as the new
// latest in one transaction.
func (s *GormIssueStore) PublishLatest(ctx context.Context, issue *Issue) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Issue{}).Where("is_latest = ?", true).Update("is_latest", false).Error; err != nil {
			return err
		}
		issue.IsLatest = true
		return tx.Create(issue).Error
	})
}
