package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
)

// retrier bounds store calls. Reads are retried on transient failures, writes never are.
type retrier struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

func newRetrier(s Settings, logger *slog.Logger) retrier {
	return retrier{
		attempts: s.ReadRetries + 1,
		backoff:  s.RetryBackoff,
		timeout:  s.RequestTimeout,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readWithRetry runs fn with a per-attempt timeout and retries transient failures with doubling backoff.
func readWithRetry[T any](ctx context.Context, r retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := r.attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := withTimeout(ctx, r.timeout, fn)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !isTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		r.logger.Warn("transient read failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}
	return zero, fmt.Errorf("%s: %w: %v", op, domainErrors.ErrUnavailable, lastErr)
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// write runs fn once under the request timeout. A timeout means the write may have
// committed, so it is reported as ErrOutcomeUnknown rather than a plain failure.
func (r retrier) write(ctx context.Context, op string, fn func(context.Context) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if _, ok := domainErrors.AsFailure(err); ok {
		return err
	}
	switch {
	case pgconn.SafeToRetry(err):
		return fmt.Errorf("%s: %w: %v", op, domainErrors.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err), isNetTimeout(err):
		return fmt.Errorf("%s: %w: %v", op, domainErrors.ErrOutcomeUnknown, err)
	}
	return err
}

func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domainErrors.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return true
	case pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return true
	}
	return isNetTimeout(err)
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
