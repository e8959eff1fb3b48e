package provision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memberline/memberline/internal/identity"
)

// ProjectionFetcher is the slice of the identity platform the waiter needs.
type ProjectionFetcher interface {
	FetchProjection(ctx context.Context, id uuid.UUID) (identity.Projection, error)
}

// WaitConfig bounds the projection poll loop. Both knobs come from application
// configuration; the waiter has no built-in defaults of its own.
type WaitConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// SleepFunc suspends between probes. Injected so tests can run with a fake
// clock; the default implementation honors context cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Waiter polls for the asynchronously materialized projection of a freshly
// created identity.
type Waiter struct {
	fetcher ProjectionFetcher
	cfg     WaitConfig
	sleep   SleepFunc
	logger  *slog.Logger
}

// NewWaiter constructs a waiter.
func NewWaiter(fetcher ProjectionFetcher, cfg WaitConfig, logger *slog.Logger) *Waiter {
	return &Waiter{fetcher: fetcher, cfg: cfg, sleep: defaultSleep, logger: logger}
}

// WithSleep overrides the inter-probe sleep. Test hook.
func (w *Waiter) WithSleep(sleep SleepFunc) *Waiter {
	w.sleep = sleep
	return w
}

// Await polls until the projection for id becomes visible or the attempt
// budget is exhausted. A not-found probe is a normal outcome, not an error;
// only exhaustion produces ProjectionTimeoutError. Await may be called again
// after a successful return and will simply observe the projection once more.
func (w *Waiter) Await(ctx context.Context, id uuid.UUID) (identity.Projection, error) {
	attempts := w.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		proj, err := w.fetcher.FetchProjection(ctx, id)
		if err == nil {
			return proj, nil
		}
		if ctx.Err() != nil {
			return identity.Projection{}, ctx.Err()
		}
		if !errors.Is(err, identity.ErrNotFound) && w.logger != nil {
			// Transient fetch failures count as misses; the attempt budget is
			// the only thing that turns absence into an error.
			w.logger.Warn("projection probe failed",
				slog.String("identity_id", id.String()),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		}
		if attempt == attempts {
			break
		}
		if err := w.sleep(ctx, w.cfg.Interval); err != nil {
			return identity.Projection{}, err
		}
	}
	return identity.Projection{}, &ProjectionTimeoutError{IdentityID: id, Attempts: attempts}
}
