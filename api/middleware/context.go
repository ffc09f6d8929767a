package middleware

import "context"

type contextKey string

const (
	ctxRole      contextKey = "actor_role"
	ctxRequestID contextKey = "request_id"
)

// RoleFromContext returns the acting role resolved by ActorRole.
func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRequestID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
