package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-streak-backend/internal/config"
	"habit-streak-backend/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Retrier re-runs operations that fail with models.ErrTransientStore using
// exponential backoff, up to a fixed number of attempts.
type Retrier struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewRetrier creates a retrier from configuration
func NewRetrier(cfg config.RetryConfig) *Retrier {
	return &Retrier{
		maxAttempts:     max(cfg.MaxAttempts, 1),
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(
		func() error {
			attempts++
			err := fn(ctx)
			if err != nil && !errors.Is(err, models.ErrTransientStore) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.maxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			retryCounter.WithLabelValues(op).Inc()
			log.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempts).
				Dur("backoff", wait).
				Msg("Transient store failure, retrying")
		},
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrTransientStore):
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s timed out: %w: %w", op, models.ErrTransientStore, err)
	}
	return err
}
