package authn

import "context"

type contextKey int

const adminPrincipalKey contextKey = iota

// NewAdminContext returns a copy of ctx carrying principal.
func NewAdminContext(ctx context.Context, principal AdminPrincipal) context.Context {
	return context.WithValue(ctx, adminPrincipalKey, principal)
}

// AdminFromContext returns the admin principal stored in ctx, if any.
func AdminFromContext(ctx context.Context) (AdminPrincipal, bool) {
	principal, ok := ctx.Value(adminPrincipalKey).(AdminPrincipal)
	return principal, ok
}
