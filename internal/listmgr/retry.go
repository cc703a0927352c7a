package listmgr

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// classify maps a raw driver error to a portable Code. Disconnection,
// deadlock, and lock-timeout strings are recognized across the sqlite and
// mysql drivers this store supports; anything else is treated as
// non-retryable.
func classify(err error) Code {
	if err == nil {
		return Success
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Retryable
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "lock wait timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "driver: bad connection"):
		return Retryable
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate entry"):
		return AlreadyExists
	}
	return ConnectFailed
}

// withRetry runs fn inside delayed_retry discipline: on a retryable
// error, the caller's transaction has already been rolled back by fn, and
// this loop sleeps for an exponentially growing delay bounded by
// [retryMin, retryMax] before re-invoking fn from its outermost begin.
// Success after at least one retry is logged at info level, matching the
// spec's "logged at event level" requirement.
func withRetry(ctx context.Context, retryMin, retryMax time.Duration, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryMin
	b.MaxInterval = retryMax
	b.MaxElapsedTime = 0 // bounded only by ctx
	bo := backoff.WithContext(b, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)

	if err == nil && attempt > 1 {
		log.Info().Str("op", op).Int("attempts", attempt).Msg("listmgr: operation succeeded after retry")
	}
	if err != nil && ctx.Err() != nil {
		return newErr(Shutdown, op, ctx.Err())
	}
	return err
}
