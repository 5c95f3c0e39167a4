package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	RequireRole string
	PublicPaths map[string]bool
	DisableAuth bool
	Logger      *zap.Logger
	// OnAuthenticated runs after a token is accepted. An error aborts with 500.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DisableAuth {
		log.Warn("auth disabled via AUTH_DISABLED for local development")
	}

	return func(c *gin.Context) {
		if cfg.DisableAuth {
			claims := &Claims{
				Subject: LocalDevSubject,
				Issuer:  "local",
				Email:   "dev@localhost",
				Role:    "authenticated",
				Raw:     map[string]any{"sub": LocalDevSubject},
			}
			accept(c, claims, cfg, log)
			return
		}

		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Info("auth failure: missing Authorization header", zap.String("path", c.Request.URL.Path))
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Info("auth failure: malformed Authorization header", zap.String("path", c.Request.URL.Path))
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Info("auth failure: token invalid", zap.String("path", c.Request.URL.Path), zap.Error(err))
			respondUnauthorized(c, "invalid token")
			return
		}

		if cfg.RequireRole != "" && claims.Role != cfg.RequireRole {
			log.Info("auth failure: wrong role", zap.String("path", c.Request.URL.Path), zap.String("role", claims.Role))
			respondUnauthorized(c, "insufficient role")
			return
		}

		accept(c, claims, cfg, log)
	}
}

func accept(c *gin.Context, claims *Claims, cfg MiddlewareConfig, log *zap.Logger) {
	ctx := WithClaims(c.Request.Context(), claims)
	c.Request = c.Request.WithContext(ctx)
	if cfg.OnAuthenticated != nil {
		if err := cfg.OnAuthenticated(c, claims); err != nil {
			log.Error("post-auth hook failed", zap.String("user_id", claims.Subject), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
	}
	c.Next()
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
