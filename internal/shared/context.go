// Package shared holds cross-cutting helpers used by the HTTP layer.
package shared

import (
	"context"

	"github.com/memberline/memberline/internal/session"
)

type actorContextKey struct{}

// ContextWithActor stores a snapshot of the actor session in context. The
// snapshot is taken once per request; later store updates do not leak into
// an in-flight request.
func ContextWithActor(ctx context.Context, sess session.ActorSession) context.Context {
	return context.WithValue(ctx, actorContextKey{}, sess)
}

// ActorFromContext extracts the actor session snapshot from context.
func ActorFromContext(ctx context.Context) (session.ActorSession, bool) {
	sess, ok := ctx.Value(actorContextKey{}).(session.ActorSession)
	return sess, ok
}
