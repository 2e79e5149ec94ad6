package app

import (
	"context"
	"strings"
)

// WithActor attaches the caller identity used to attribute adjustment log entries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext returns the attached caller identity when present.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}

// actorContextKey stores context keys for actor attribution.
type actorContextKey struct{}
