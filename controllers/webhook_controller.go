package controllers

import (
	"context"
	"io"
	"net/http"

	"checkout-service/common/logger"
	"checkout-service/gateway"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = int64(65536)

// WebhookParser verifies and decodes provider webhooks.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (gateway.WebhookEvent, error)
}

// PaymentFinalizer finalizes an order once its payment is known to succeed.
type PaymentFinalizer interface {
	PaymentSucceeded(ctx context.Context, orderID, intentID string) error
}

// WebhookController receives asynchronous payment outcomes.
type WebhookController struct {
	parser    WebhookParser
	finalizer PaymentFinalizer
	log       *zap.Logger
}

func NewWebhookController(parser WebhookParser, finalizer PaymentFinalizer, log *zap.Logger) *WebhookController {
	return &WebhookController{parser: parser, finalizer: finalizer, log: log}
}

// StripeWebhook handles POST /stripe/webhook.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	log := logger.For(c, wc.log)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to read body"})
		return
	}
	event, err := wc.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Warn("Invalid stripe webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		if event.OrderID == "" {
			log.Warn("Payment intent without order id, ignoring",
				zap.String("event_id", event.ID),
				zap.String("payment_intent_id", event.IntentID),
			)
			break
		}
		if err := wc.finalizer.PaymentSucceeded(c.Request.Context(), event.OrderID, event.IntentID); err != nil {
			// Non-2xx makes Stripe redeliver; finalize is keyed per order.
			log.Error("Finalize from webhook failed",
				zap.String("event_id", event.ID),
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Finalize failed"})
			return
		}
		log.Info("Order finalized from webhook", zap.String("order_id", event.OrderID), zap.String("event_id", event.ID))
	case "payment_intent.payment_failed":
		log.Info("Payment failed event received",
			zap.String("order_id", event.OrderID),
			zap.String("payment_intent_id", event.IntentID),
		)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
