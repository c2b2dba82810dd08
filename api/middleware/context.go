package middleware

import "context"

type contextKey string

const (
	ctxMemberID contextKey = "member_id"
	ctxRole     contextKey = "actor_role"
)

func MemberIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxMemberID).(string); ok {
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

// WithMemberID injects the authenticated member identifier into the context.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMemberID, memberID)
}

// WithRole injects the actor role for downstream role checks.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}
