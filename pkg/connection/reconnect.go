package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/session"
)

// ErrRetriesExhausted is returned by Retry when every attempt failed. It
// wraps the last attempt's error.
var ErrRetriesExhausted = errors.New("connection: retries exhausted")

// DialFunc establishes a session.
type DialFunc func(ctx context.Context) (*session.Session, error)

// RetryConfig controls Retry.
type RetryConfig struct {
	// Attempts is the maximum number of dials. Zero means one.
	Attempts int

	// Backoff paces the attempts. Defaults to a one second initial delay
	// doubling up to a minute.
	Backoff *Backoff

	// Retryable reports whether an error is worth another attempt. When
	// nil every error except ErrPeerRejected is retried.
	Retryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	Logger *slog.Logger
}

// Retry calls dial until it succeeds, the attempts run out, the error is
// not retryable, or ctx is done.
func Retry(ctx context.Context, cfg RetryConfig, dial DialFunc) (*session.Session, error) {
	attempts := max(cfg.Attempts, 1)
	b := cfg.Backoff
	if b == nil {
		b = NewBackoffWithConfig(BackoffConfig{
			Initial: time.Second,
			Max:     time.Minute,
			Jitter:  JitterFactor,
		})
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return !errors.Is(err, ErrPeerRejected) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var last error
	for attempt := 1; ; attempt++ {
		s, err := dial(ctx)
		if err == nil {
			return s, nil
		}
		last = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
		if attempt >= attempts {
			break
		}

		delay := b.Next()
		logger.Debug("dial failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, errors.Join(ErrRetriesExhausted, last)
}
