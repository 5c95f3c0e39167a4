package app

import (
	"errors"
	"net/http"

	"github.com/popules/ticko-sub001/app/ai"
	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type chatRequest struct {
	Message string `json:"message"`
}

// AIChat answers a copilot question. Invalid input is rejected before any
// quota is consumed; the AI service charges the quota right before the LLM
// call.
func (h *Handlers) AIChat(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	message, err := ai.ValidateMessage(req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ans, err := h.ai.Chat(c.Request.Context(), userID, message)
	if err != nil {
		h.writeAIError(c, userID, "failed to answer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": ans.Text, "fallback": ans.Fallback})
}

func (h *Handlers) AIMorningReport(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	ans, err := h.ai.MorningReport(c.Request.Context(), userID)
	if err != nil {
		h.writeAIError(c, userID, "failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": ans.Text, "fallback": ans.Fallback})
}

func (h *Handlers) AIInsights(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	ans, err := h.ai.Insights(c.Request.Context(), userID)
	if err != nil {
		h.writeAIError(c, userID, "failed to build insights", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": ans.Text, "fallback": ans.Fallback})
}

// LatestReport returns the newest stored report of a kind without calling
// the LLM, so it is not metered.
func (h *Handlers) LatestReport(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	kind := models.ReportKind(c.Param("kind"))
	if kind != models.ReportMorning && kind != models.ReportInsights {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report kind"})
		return
	}

	r, err := h.store.LatestReport(c.Request.Context(), userID, kind)
	if errors.Is(err, store.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet"})
		return
	}
	if err != nil {
		h.log.Error("load report failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}
	c.JSON(http.StatusOK, r)
}
