package newsletter

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/aws/smithy-go"
	"github.com/tech-arch1tect/folio/services/logging"
	"go.uber.org/zap"
)

var throttlingCodes = map[string]bool{
	"TooManyRequestsException": true,
	"Throttling":               true,
	"ThrottlingException":      true,
	"LimitExceededException":   true,
}

// A bare 429 only counts as a status code, not inside an address or ID.
var rateLimitText = regexp.MustCompile(`(?i)(?:^|[^0-9a-z])429(?:[^0-9a-z]|$)|rate limit|too many requests`)

// IsRateLimited reports whether err means the mail provider is throttling us.
// Typed provider errors are checked first; the error text is the fallback.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttlingCodes[apiErr.ErrorCode()] {
		return true
	}

	var limited interface{ RateLimited() bool }
	if errors.As(err, &limited) && limited.RateLimited() {
		return true
	}

	return rateLimitText.MatchString(err.Error())
}

// RetryPolicy retries rate limited calls with a doubling backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Classify    func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait before attempt+1, attempt counting from 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseBackoff << (attempt - 1)
}

// Do runs fn until it succeeds, fails with an error Classify rejects, or
// MaxAttempts is reached. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, logger *logging.Service, fn func(context.Context) error) (int, error) {
	classify := p.Classify
	if classify == nil {
		classify = IsRateLimited
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if !classify(err) || attempt == attempts {
			return attempt, err
		}

		wait := p.Backoff(attempt)
		logger.Warn("mail provider rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return attempt, err
		}
	}
	return attempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
