// Package app maps AI orchestrator failures, including the spent daily quota,
// to HTTP responses.
package app

import (
	"errors"
	"net/http"

	"github.com/popules/ticko-sub001/app/ai"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeAIError answers 402 limit_reached when today's free quota is spent and
// 500 with message otherwise.
func (h *Handlers) writeAIError(c *gin.Context, userID, message string, err error) {
	if errors.Is(err, ai.ErrLimitReached) {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "limit_reached"})
		return
	}
	h.log.Error(message, zap.String("user_id", userID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
