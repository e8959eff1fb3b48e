package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/memberline/memberline/internal/authz"
	"github.com/memberline/memberline/internal/identity"
)

// ProjectionFetcher is the slice of the identity platform the resolver needs.
type ProjectionFetcher interface {
	FetchProjection(ctx context.Context, id uuid.UUID) (identity.Projection, error)
}

// ResolutionObserver records resolution outcomes for metrics.
type ResolutionObserver interface {
	ObserveResolution(mode string)
}

// Resolution modes reported to the observer.
const (
	ResolutionFull      = "full"
	ResolutionDegraded  = "degraded"
	ResolutionDiscarded = "discarded"
)

// Resolver turns identity notifications into actor sessions. Concurrent
// resolutions for the same identity collapse into one fetch, and a short
// deadline guards against the projection store stalling the whole UI: on
// timeout the resolver degrades to the metadata role (or guest) instead of
// blocking.
type Resolver struct {
	store    *Store
	fetcher  ProjectionFetcher
	timeout  time.Duration
	group    singleflight.Group
	observer ResolutionObserver
	logger   *slog.Logger
}

// NewResolver constructs a resolver.
func NewResolver(store *Store, fetcher ProjectionFetcher, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger,
	}
}

// WithObserver attaches a metrics observer.
func (r *Resolver) WithObserver(observer ResolutionObserver) *Resolver {
	r.observer = observer
	return r
}

// Begin marks id as the resolution target and returns the epoch token the
// completion must present. Callers that need staleness to follow event order
// (the loop) call Begin on the event goroutine before handing off to
// Complete; a sign-out handled after Begin then invalidates the token.
func (r *Resolver) Begin(id uuid.UUID) uint64 {
	return r.store.Begin(id)
}

// Resolve loads the session for id and publishes it to the store. Overlapping
// calls for the same identity join the in-flight fetch instead of starting a
// second one. The result is discarded when a sign-out (or a newer sign-in)
// superseded this resolution while it was running.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID, meta identity.Metadata) ActorSession {
	return r.Complete(ctx, r.Begin(id), id, meta)
}

// Complete performs the fetch for a resolution begun earlier and publishes
// the outcome, unless the epoch token went stale in the meantime.
func (r *Resolver) Complete(ctx context.Context, epoch uint64, id uuid.UUID, meta identity.Metadata) ActorSession {
	value, err, _ := r.group.Do(id.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.fetcher.FetchProjection(fetchCtx, id)
	})

	var sess ActorSession
	if err != nil {
		sess = r.degraded(id, meta, err)
	} else {
		proj := value.(identity.Projection)
		sess = ActorSession{
			IdentityID: id,
			Role:       authz.NormalizeRole(proj.Role),
			Projection: &proj,
			ResolvedAt: time.Now().UTC(),
		}
	}

	if !r.store.Apply(epoch, sess) {
		r.observe(ResolutionDiscarded)
		if r.logger != nil {
			r.logger.Debug("stale resolution discarded", slog.String("identity_id", id.String()))
		}
		return r.store.Current()
	}
	if sess.Degraded {
		r.observe(ResolutionDegraded)
	} else {
		r.observe(ResolutionFull)
	}
	return sess
}

// SignOut clears the session synchronously and unconditionally, pre-empting
// any in-flight resolution.
func (r *Resolver) SignOut() {
	r.store.Clear()
}

// degraded builds the minimum-privilege fallback session. This is the one
// place a failure is absorbed into a safe default: blocking the UI on an
// identity-platform hiccup is worse than briefly under-privileging it.
func (r *Resolver) degraded(id uuid.UUID, meta identity.Metadata, cause error) ActorSession {
	role := authz.RoleGuest
	if meta.Role != "" {
		role = authz.NormalizeRole(meta.Role)
	}
	if r.logger != nil {
		r.logger.Warn("session resolution degraded",
			slog.String("identity_id", id.String()),
			slog.String("role", string(role)),
			slog.Any("error", cause))
	}
	return ActorSession{
		IdentityID:     id,
		Role:           role,
		ResolvedAt:     time.Now().UTC(),
		Degraded:       true,
		DegradedReason: cause.Error(),
	}
}

func (r *Resolver) observe(mode string) {
	if r.observer != nil {
		r.observer.ObserveResolution(mode)
	}
}
