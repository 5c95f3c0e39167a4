package app

import (
	"net/http"
	"time"

	"github.com/popules/ticko-sub001/auth"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// userIDFromContext reads the verified subject. It writes 401 and returns
// false when the request carries no claims.
func userIDFromContext(c *gin.Context) (string, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return "", false
	}
	return claims.Subject, true
}

// accessLogger writes one zap line per request, tagged with the signed-in
// user when there is one.
func accessLogger(log *zap.Logger) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
		Context: func(c *gin.Context) []zapcore.Field {
			if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
				return []zapcore.Field{zap.String("user_id", claims.Subject)}
			}
			return nil
		},
	})
}
