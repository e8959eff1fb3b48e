package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/memberline/memberline/internal/identity"
	_ "github.com/memberline/memberline/testing"
)

type scriptedFetcher struct {
	calls      int
	foundAfter int
	err        error
	projection identity.Projection
}

func (f *scriptedFetcher) FetchProjection(ctx context.Context, id uuid.UUID) (identity.Projection, error) {
	f.calls++
	if f.foundAfter > 0 && f.calls >= f.foundAfter {
		proj := f.projection
		proj.ID = id
		return proj, nil
	}
	if f.err != nil {
		return identity.Projection{}, f.err
	}
	return identity.Projection{}, identity.ErrNotFound
}

func fakeSleep(slept *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestAwaitFoundOnLastProbe(t *testing.T) {
	fetcher := &scriptedFetcher{foundAfter: 10}
	var slept []time.Duration
	waiter := NewWaiter(fetcher, WaitConfig{Interval: 300 * time.Millisecond, MaxAttempts: 10}, nil).WithSleep(fakeSleep(&slept))

	id := uuid.New()
	proj, err := waiter.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, proj.ID)
	require.Equal(t, 10, fetcher.calls)
	// Nine misses, nine sleeps, all at the configured interval.
	require.Len(t, slept, 9)
	for _, d := range slept {
		require.Equal(t, 300*time.Millisecond, d)
	}
}

func TestAwaitTimesOutAfterBudget(t *testing.T) {
	fetcher := &scriptedFetcher{}
	var slept []time.Duration
	waiter := NewWaiter(fetcher, WaitConfig{Interval: 300 * time.Millisecond, MaxAttempts: 10}, nil).WithSleep(fakeSleep(&slept))

	id := uuid.New()
	_, err := waiter.Await(context.Background(), id)

	var timeoutErr *ProjectionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, id, timeoutErr.IdentityID)
	require.Equal(t, 10, timeoutErr.Attempts)
	require.Equal(t, 10, fetcher.calls)
}

func TestAwaitToleratesTransientErrors(t *testing.T) {
	// Probe errors other than not-found count as misses; only exhaustion of
	// the budget is an error.
	fetcher := &scriptedFetcher{err: errors.New("connection reset"), foundAfter: 3}
	var slept []time.Duration
	waiter := NewWaiter(fetcher, WaitConfig{Interval: time.Millisecond, MaxAttempts: 5}, nil).WithSleep(fakeSleep(&slept))

	_, err := waiter.Await(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.calls)
}

func TestAwaitRepeatableAfterFound(t *testing.T) {
	fetcher := &scriptedFetcher{foundAfter: 1}
	var slept []time.Duration
	waiter := NewWaiter(fetcher, WaitConfig{Interval: time.Millisecond, MaxAttempts: 3}, nil).WithSleep(fakeSleep(&slept))

	id := uuid.New()
	_, err := waiter.Await(context.Background(), id)
	require.NoError(t, err)

	_, err = waiter.Await(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, slept)
}

func TestAwaitHonorsCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{}
	waiter := NewWaiter(fetcher, WaitConfig{Interval: time.Hour, MaxAttempts: 10}, nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	})

	_, err := waiter.Await(context.Background(), uuid.New())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fetcher.calls)
}
