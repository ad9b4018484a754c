package domain

import "context"

// ============================================================
// Auth: authenticated caller carried in the request context
// ============================================================

// Caller roles.
const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
	RoleIntake        = "intake"
)

// Principal is the authenticated caller of a request: a Supabase user
// (from the access token) or the capture agent (intake token).
type Principal struct {
	UserID string
	Email  string
	Role   string
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// UserIDFromContext returns the caller's user id, or "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID
	}
	return ""
}
