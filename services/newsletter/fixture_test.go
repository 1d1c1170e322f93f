package newsletter

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/services/logging"
	"github.com/tech-arch1tect/folio/services/mail"
	"github.com/tech-arch1tect/folio/testutils"
	"gorm.io/gorm"
)

type fixture struct {
	cfg     *config.Config
	db      *gorm.DB
	stores  Stores
	mailer  *testutils.MockMailer
	blobs   *testutils.MockBlobStore
	clock   *testutils.FakeClock
	sleeps  *recordingSleep
	manager *Manager
	sender  *Sender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cfg:    testutils.GetTestConfig(),
		mailer: &testutils.MockMailer{},
		blobs:  &testutils.MockBlobStore{},
		clock:  testutils.NewFakeClock(),
		sleeps: &recordingSleep{},
	}
	f.db = testutils.SetupTestDB(t, Models()...)
	f.stores = NewGormStores(f.db)
	f.build(t)
	return f
}

// build recreates the manager and sender after cfg changes.
func (f *fixture) build(t *testing.T) {
	t.Helper()

	templates, err := mail.NewTemplates("", logging.NewNop())
	require.NoError(t, err)

	opts := []Option{WithClock(f.clock.Now), WithSleep(f.sleeps.sleep)}
	f.manager = NewManager(f.cfg, f.stores, f.mailer, templates, f.blobs, logging.NewNop(), opts...)
	f.sender = NewSender(f.cfg, f.stores, f.mailer, templates, f.blobs, logging.NewNop(), opts...)
}

func (f *fixture) mailSucceeds() {
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
}

func (f *fixture) subscriber(t *testing.T, email string) *Subscriber {
	t.Helper()
	sub, err := f.stores.Subscribers.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return sub
}

// addSubscriber inserts a subscriber directly in the given status.
func (f *fixture) addSubscriber(t *testing.T, email string, status Status) *Subscriber {
	t.Helper()
	ctx := context.Background()

	sub, _, err := f.stores.Subscribers.GetOrCreate(ctx, email, f.clock.Now())
	require.NoError(t, err)
	switch status {
	case StatusActive:
		require.NoError(t, f.stores.Subscribers.Activate(ctx, sub.ID, f.clock.Now()))
	case StatusUnsubscribed:
		require.NoError(t, f.stores.Subscribers.SetStatus(ctx, sub.ID, StatusUnsubscribed))
	}
	return f.subscriber(t, email)
}

func (f *fixture) issue(t *testing.T, sub *Subscriber, tokenType TokenType, ttl time.Duration) string {
	t.Helper()
	raw, err := issueToken(context.Background(), f.stores.Tokens, 32, sub.ID, tokenType, f.clock.Now().Add(ttl))
	require.NoError(t, err)
	return raw
}

var linkPattern = regexp.MustCompile(`/newsletter/(confirm|unsubscribe)/([0-9a-f]+)`)

// links extracts the raw tokens embedded in a message body, keyed by kind.
func links(t *testing.T, msg *mail.Message) map[string]string {
	t.Helper()
	found := make(map[string]string)
	for _, match := range linkPattern.FindAllStringSubmatch(msg.Text, -1) {
		found[match[1]] = match[2]
	}
	return found
}
