package app

import (
	"context"
	"strings"
)

// actorContextKey stores context keys for mutation actor ids.
type actorContextKey struct{}

// WithActor attaches the caller's actor id to context for event attribution.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actorID))
}

// ActorFromContext returns the actor id attached by WithActor, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actorID, ok := ctx.Value(actorContextKey{}).(string)
	if !ok || actorID == "" {
		return "", false
	}
	return actorID, true
}

// resolveActor prefers an explicit actor id and falls back to the context actor.
func resolveActor(ctx context.Context, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	actorID, _ := ActorFromContext(ctx)
	return actorID
}
