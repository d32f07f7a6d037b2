// Package util holds small helpers shared by the store, the WebDAV gateway
// and the scheduler.
package util

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"
)

// StoreRetryOptions retries a state database call while SQLite reports the
// database as busy: three attempts with 100ms, 200ms backoff capped at 300ms.
func StoreRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.OnRetry(func(n uint, err error) {
			log.WithField("attempt", n+1).WithError(err).Debug("storage: database busy, retrying")
		}),
		retry.Context(ctx),
	}
}

// ReauthRetryOptions makes at most one extra attempt, only when the failure
// matches target, and calls reauth before it. The returned error is the last
// attempt's error unwrapped from retry-go's aggregate.
func ReauthRetryOptions(ctx context.Context, target error, reauth func()) []retry.Option {
	return []retry.Option{
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, target) }),
		retry.OnRetry(func(uint, error) { reauth() }),
		retry.Context(ctx),
	}
}

// Retry runs fn under opts.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = []retry.Option{retry.Attempts(1), retry.Context(ctx)}
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = []retry.Option{retry.Attempts(1), retry.Context(ctx)}
	}
	return retry.DoWithData(fn, opts...)
}

// IsDatabaseLocked reports whether err is SQLite's transient busy error.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
