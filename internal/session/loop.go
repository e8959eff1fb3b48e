package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/memberline/memberline/internal/identity"
)

// Loop consumes the identity platform notification stream and drives the
// resolver. Sign-outs are handled inline so they take effect before any later
// event; resolutions run concurrently and rely on the resolver's dedup and
// staleness checks.
type Loop struct {
	stream   identity.EventStream
	resolver *Resolver
	logger   *slog.Logger
}

// NewLoop constructs a loop.
func NewLoop(stream identity.EventStream, resolver *Resolver, logger *slog.Logger) *Loop {
	return &Loop{stream: stream, resolver: resolver, logger: logger}
}

// Run blocks until ctx is cancelled or the stream ends. It waits for spawned
// resolutions to finish before returning.
func (l *Loop) Run(ctx context.Context) error {
	events, err := l.stream.Subscribe(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case identity.EventSignedOut:
				l.resolver.SignOut()
			case identity.EventSignedIn, identity.EventTokenRefreshed:
				// Begin on this goroutine so staleness follows event order:
				// a sign-out handled next invalidates the epoch even if the
				// spawned completion has not been scheduled yet.
				epoch := l.resolver.Begin(ev.IdentityID)
				wg.Add(1)
				go func(ev identity.Event, epoch uint64) {
					defer wg.Done()
					l.resolver.Complete(ctx, epoch, ev.IdentityID, ev.Metadata)
				}(ev, epoch)
			default:
				if l.logger != nil {
					l.logger.Debug("ignoring unknown identity event", slog.String("type", string(ev.Type)))
				}
			}
		}
	}
}
