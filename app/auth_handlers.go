// Package app provides public health and authenticated identity endpoints.
package app

import (
	"errors"
	"net/http"

	"github.com/popules/ticko-sub001/app/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health is a public health check endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns entitlements and today's AI usage for the authenticated user.
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	profile, err := h.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrProfileNotFound) {
		if err = h.store.EnsureProfile(ctx, userID, "", ""); err == nil {
			profile, err = h.store.GetProfile(ctx, userID)
		}
	}
	if err != nil {
		h.log.Error("load profile failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	status := h.meter.Status(profile)
	var dailyLimit any = nil
	var remaining any = nil
	if !profile.IsPro {
		dailyLimit = status.Limit
		remaining = status.Remaining()
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               profile.ID,
		"plan":             profile.Plan(),
		"is_pro":           profile.IsPro,
		"pro_expires_at":   profile.ProExpiresAt,
		"watchlist_limit":  profile.WatchlistLimit,
		"ai_usage_count":   status.Count,
		"daily_limit":      dailyLimit,
		"remaining":        remaining,
		"paid_reset_count": profile.PaidResetCount,
	})
}
