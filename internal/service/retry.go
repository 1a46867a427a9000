package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/metrics"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds automatic retries of transient ledger failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy tries three times with a short exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the attempts are exhausted. Business outcomes are returned on first sight.
func withRetry[T any](ctx context.Context, op string, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var lastErr error
	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !model.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.attempts()),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RegistrationRetriesTotal.WithLabelValues(op).Inc()
			zerolog.Ctx(ctx).Warn().Err(err).Str("operation", op).Dur("backoff", wait).Msg("retrying transient failure")
		}),
	)
	if err == nil {
		return result, nil
	}
	// Retry hands back the wrapper when the final attempt was permanent.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return result, permanent.Err
	}

	// The context expired while waiting between attempts.
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		if lastErr != nil && model.IsTransient(lastErr) {
			return result, lastErr
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("%s: %w: %w", op, model.ErrTransient, ctxErr)
		}
	}
	return result, err
}
