// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/popules/ticko-sub001/auth"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(h *Handlers, verifier *auth.Verifier, authCfg auth.MiddlewareConfig) *gin.Engine {
	router := gin.New()
	router.Use(accessLogger(h.log), ginzap.RecoveryWithZap(h.log, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", h.Health)
	router.POST("/api/polar/webhook", h.PolarWebhook)

	if authCfg.OnAuthenticated == nil {
		authCfg.OnAuthenticated = EnsureProfileFromClaims(h.store)
	}
	if authCfg.Logger == nil {
		authCfg.Logger = h.log
	}

	protected := router.Group("/api")
	protected.Use(auth.Middleware(verifier, authCfg))
	protected.GET("/me", h.Me)
	protected.GET("/quotes/:symbol", h.GetQuote)
	protected.GET("/reports/:kind", h.LatestReport)
	protected.POST("/ai/chat", h.AIChat)
	protected.POST("/ai/morning-report", h.AIMorningReport)
	protected.POST("/ai/insights", h.AIInsights)

	return router
}
