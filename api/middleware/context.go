package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext rebuilds the authenticated caller. ok is false for
// anonymous requests.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || userID == uuid.Nil {
		return auth.Actor{}, false
	}
	role := enums.ActorRole(RoleFromContext(ctx))
	if !role.IsValid() {
		return auth.Actor{}, false
	}
	return auth.Actor{UserID: userID, Role: role}, true
}

// WithActor injects the caller into the context for downstream handlers.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID.String())
	return context.WithValue(ctx, ctxRole, string(actor.Role))
}
