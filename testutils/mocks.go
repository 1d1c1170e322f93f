package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/folio/services/mail"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg *mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Messages returns every message passed to Send, in call order.
func (m *MockMailer) Messages() []*mail.Message {
	var messages []*mail.Message
	for _, call := range m.Calls {
		if call.Method == "Send" {
			messages = append(messages, call.Arguments.Get(1).(*mail.Message))
		}
	}
	return messages
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) ObjectKey(filename string) string {
	args := m.Called(filename)
	return args.String(0)
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockBlobStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

// FakeClock is a settable time source.
type FakeClock struct {
	Current time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{Current: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	return c.Current
}

func (c *FakeClock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}
