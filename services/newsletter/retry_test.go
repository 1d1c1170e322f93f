package newsletter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/folio/services/logging"
)

type throttled struct{}

func (throttled) Error() string     { return "slow down" }
func (throttled) RateLimited() bool { return true }

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http status text", err: errors.New("provider returned 429"), want: true},
		{name: "rate limit phrase", err: errors.New("Rate Limit exceeded"), want: true},
		{name: "too many requests", err: errors.New("Too Many Requests"), want: true},
		{name: "ses throttling", err: &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "sending paused"}, want: true},
		{name: "wrapped limit exceeded", err: fmt.Errorf("send: %w", &smithy.GenericAPIError{Code: "LimitExceededException"}), want: true},
		{name: "typed rate limited", err: throttled{}, want: true},
		{name: "other api error", err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "address blacklisted"}, want: false},
		{name: "mailbox unavailable", err: errors.New("550 mailbox unavailable"), want: false},
		{name: "leading status code", err: errors.New("429 Too Many Requests"), want: true},
		{name: "status in parentheses", err: errors.New("smtp error (429)"), want: true},
		{name: "429 inside an address", err: errors.New("550 5.1.1 <sales429@foo.com>: recipient address rejected"), want: false},
		{name: "429 inside a message id", err: errors.New("554 message id 14290 rejected"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimited(tt.err))
		})
	}
}

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestRetryPolicy_Do(t *testing.T) {
	newPolicy := func(r *recordingSleep) RetryPolicy {
		return RetryPolicy{MaxAttempts: 4, BaseBackoff: 700 * time.Millisecond, Sleep: r.sleep}
	}

	t.Run("backs off 700ms 1400ms 2800ms then gives up", func(t *testing.T) {
		rec := &recordingSleep{}
		calls := 0

		attempts, err := newPolicy(rec).Do(context.Background(), logging.NewNop(), func(context.Context) error {
			calls++
			return errors.New("429 too many requests")
		})

		require.Error(t, err)
		assert.Equal(t, 4, attempts)
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{700 * time.Millisecond, 1400 * time.Millisecond, 2800 * time.Millisecond}, rec.waits)
	})

	t.Run("succeeds after rate limit clears", func(t *testing.T) {
		rec := &recordingSleep{}
		calls := 0

		attempts, err := newPolicy(rec).Do(context.Background(), logging.NewNop(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("rate limit")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Len(t, rec.waits, 2)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		rec := &recordingSleep{}

		attempts, err := newPolicy(rec).Do(context.Background(), logging.NewNop(), func(context.Context) error {
			return errors.New("550 mailbox unavailable")
		})

		require.EqualError(t, err, "550 mailbox unavailable")
		assert.Equal(t, 1, attempts)
		assert.Empty(t, rec.waits)
	})

	t.Run("stops when context is cancelled during backoff", func(t *testing.T) {
		rec := &recordingSleep{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts, err := newPolicy(rec).Do(ctx, logging.NewNop(), func(context.Context) error {
			return errors.New("429")
		})

		require.EqualError(t, err, "429")
		assert.Equal(t, 1, attempts)
	})
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
