package auth

import (
	"context"
)

type contextKey string

const (
	// ContextKeyService is the context key for the authenticated service name
	ContextKeyService contextKey = "service"
	// ContextKeyRole is the context key for the authenticated service role
	ContextKeyRole contextKey = "role"
)

// WithClaims adds the authenticated service identity to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ContextKeyService, claims.Subject)
	return context.WithValue(ctx, ContextKeyRole, claims.Role)
}

// ServiceFromContext retrieves the authenticated service name from the context
func ServiceFromContext(ctx context.Context) (string, bool) {
	svc, ok := ctx.Value(ContextKeyService).(string)
	return svc, ok
}

// RoleFromContext retrieves the authenticated role from the context
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(ContextKeyRole).(Role)
	return role, ok
}
