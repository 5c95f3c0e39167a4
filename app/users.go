// Package app provides user persistence helpers for authenticated requests.
package app

import (
	"github.com/popules/ticko-sub001/app/store"
	"github.com/popules/ticko-sub001/auth"

	"github.com/gin-gonic/gin"
)

// EnsureProfileFromClaims returns an auth hook that creates a free-tier
// profile for first-time users.
func EnsureProfileFromClaims(s *store.Store) func(c *gin.Context, claims *auth.Claims) error {
	return func(c *gin.Context, claims *auth.Claims) error {
		if s == nil || claims == nil || claims.Subject == "" {
			return nil
		}
		return s.EnsureProfile(c.Request.Context(), claims.Subject, claims.Email, claims.Username())
	}
}
