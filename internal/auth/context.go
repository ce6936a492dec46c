package auth

import (
	"context"
	"strings"
)

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NormalizeIdentity lowercases and trims an email identity.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContextWithUser stores the caller identity (an email address) in the context.
func ContextWithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, identityKey, NormalizeIdentity(email))
}

// UserIDFromContext extracts the caller identity from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(identityKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
