package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/popules/ticko-sub001/app/quotes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetQuote proxies one symbol through the quote gateway.
func (h *Handlers) GetQuote(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	q, err := h.quotes.GetQuote(ctx, c.Param("symbol"))
	switch {
	case errors.Is(err, quotes.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
	case errors.Is(err, quotes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
	case err != nil:
		h.log.Warn("quote lookup failed", zap.String("symbol", c.Param("symbol")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "quote provider unavailable"})
	default:
		c.JSON(http.StatusOK, q)
	}
}
