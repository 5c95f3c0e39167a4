// Package auth provides request context helpers for verified Supabase claims.
package auth

import (
	"context"
	"strings"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// LocalDevSubject is the user id injected when auth is disabled.
const LocalDevSubject = "00000000-0000-0000-0000-000000000001"

// Claims contains the verified Supabase access token details we care about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Email     string
	Role      string
	Raw       map[string]any
}

// Username reads user_metadata.username, falling back to the email local part.
func (c *Claims) Username() string {
	if meta, ok := c.Raw["user_metadata"].(map[string]any); ok {
		if s, ok := meta["username"].(string); ok && s != "" {
			return s
		}
	}
	local, _, _ := strings.Cut(c.Email, "@")
	return local
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
