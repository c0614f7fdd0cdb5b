package auth

import (
	"context"

	"folio.org/internal/workflow"
)

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor workflow.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (workflow.Actor, bool) {
	if ctx == nil {
		return workflow.Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(workflow.Actor)
	if !ok || v.ID == "" {
		return workflow.Actor{}, false
	}
	return v, true
}
