package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RetryConfig bounds flood-wait retries. The server's retry_after hint takes
// precedence over the computed delay when it is longer.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute}

func (c *RetryConfig) normalize() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.BaseDelay
	}
}

// retryAfter extracts the flood-wait hint from a Bot API error.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code != 429 && apiErr.RetryAfter <= 0 {
		return 0, false
	}
	return time.Duration(apiErr.RetryAfter) * time.Second, true
}

// retryFlood runs fn until it succeeds, fails with something other than a
// flood wait, or runs out of attempts.
func retryFlood[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg.normalize()

	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		hint, flood := retryAfter(err)
		if !flood || attempt == cfg.MaxRetries {
			break
		}

		wait := min(max(delay, hint), cfg.MaxDelay)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, cfg.MaxDelay)
	}

	if _, flood := retryAfter(lastErr); flood {
		return zero, fmt.Errorf("flood wait retries (%d) exhausted: %w", cfg.MaxRetries, lastErr)
	}
	return zero, lastErr
}
