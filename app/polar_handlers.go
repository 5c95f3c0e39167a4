package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/popules/ticko-sub001/app/entitlement"
	"github.com/popules/ticko-sub001/app/reconcile"
	"github.com/popules/ticko-sub001/app/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = int64(1 << 20)

// PolarWebhook verifies a Polar delivery and applies it to the user's
// entitlements. Failed side effects are queued for reconcile and still
// acknowledged so Polar does not retry a half-understood event forever.
func (h *Handlers) PolarWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.log.Warn("polar webhook read failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if !h.verifier.Verify(body, c.Request.Header) {
		h.log.Warn("polar webhook signature rejected",
			zap.String("webhook_id", c.GetHeader(webhook.HeaderID)),
			zap.Bool("secret_configured", h.verifier.Configured()),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	event, err := entitlement.ParseEvent(body)
	if err != nil {
		h.log.Error("polar webhook payload unparsable", zap.String("webhook_id", c.GetHeader(webhook.HeaderID)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid payload"})
		return
	}

	delivery := entitlement.Delivery{
		WebhookID:  c.GetHeader(webhook.HeaderID),
		Event:      event,
		ReceivedAt: h.now(),
	}

	ctx := c.Request.Context()
	res, err := h.machine.Apply(ctx, delivery)
	switch {
	case errors.Is(err, entitlement.ErrMissingUserID):
		h.log.Warn("polar webhook missing userId",
			zap.String("webhook_id", delivery.WebhookID),
			zap.String("event_type", event.Type),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	case err != nil:
		var stepErr *entitlement.StepError
		step := ""
		if errors.As(err, &stepErr) {
			step = stepErr.Step
		}
		h.log.Error("entitlement transition failed",
			zap.String("webhook_id", delivery.WebhookID),
			zap.String("event_type", event.Type),
			zap.String("user_id", event.Data.Metadata.UserID),
			zap.String("step", step),
			zap.Error(err),
		)
		if perr := h.reconcile.Publish(ctx, reconcile.NewMessage(delivery, err, h.now())); perr != nil {
			h.log.Error("reconcile publish failed", zap.String("webhook_id", delivery.WebhookID), zap.Error(perr))
		}
		c.JSON(http.StatusAccepted, gin.H{"received": true})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"received": true, "outcome": res.Outcome})
}
