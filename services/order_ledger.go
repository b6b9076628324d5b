package services

import (
	"context"
	"errors"
	"net/http"

	"checkout-service/clients"
	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/resilience"

	"go.uber.org/zap"
)

// OrderStore is the remote order API.
type OrderStore interface {
	CreatePendingOrder(ctx context.Context, draft models.OrderDraft, key string) (string, error)
	CancelOrder(ctx context.Context, orderID, key, reason string) error
	FinalizeOrder(ctx context.Context, orderID, paymentRef string) error
}

// OrderLedger wraps the order store with retries. Every call of one logical
// attempt carries the same idempotency key; deduplication is the store's job.
type OrderLedger struct {
	store OrderStore
	retry resilience.Config
	log   *zap.Logger
	rec   recorder
}

func NewOrderLedger(store OrderStore, retry resilience.Config, log *zap.Logger, metrics aws_pkg.MetricsRecorder) *OrderLedger {
	return &OrderLedger{store: store, retry: retry, log: log, rec: recorder{metrics: metrics}}
}

// CreatePendingOrder creates (or returns the existing) pending order for key.
func (l *OrderLedger) CreatePendingOrder(ctx context.Context, draft models.OrderDraft, key string) (string, error) {
	cfg := l.rec.retryPolicy(l.retry, l.log.With(zap.String("idempotency_key", key)), "order_create")
	orderID, attempts, err := resilience.Execute(ctx, cfg, func(ctx context.Context) (string, error) {
		return l.store.CreatePendingOrder(ctx, draft, key)
	})
	if err != nil {
		l.log.Error("create pending order failed",
			zap.String("idempotency_key", key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return "", classifyStoreError("Order could not be created", err)
	}
	l.log.Info("pending order created",
		zap.String("idempotency_key", key),
		zap.String("order_id", orderID),
		zap.Int("attempts", attempts),
	)
	return orderID, nil
}

// CancelOrder cancels a pending order. Failures are logged and returned so the
// caller can hand the order to reconciliation; they never change the user
// facing outcome.
func (l *OrderLedger) CancelOrder(ctx context.Context, orderID, key, reason string) error {
	cfg := l.rec.retryPolicy(l.retry, l.log.With(zap.String("order_id", orderID)), "order_cancel")
	_, attempts, err := resilience.Execute(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.CancelOrder(ctx, orderID, key, reason)
	})
	if err != nil {
		l.log.Error("cancel pending order failed",
			zap.String("order_id", orderID),
			zap.String("idempotency_key", key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return err
	}
	l.log.Info("pending order cancelled", zap.String("order_id", orderID), zap.String("reason", reason))
	return nil
}

// FinalizeOrder applies the post-payment side effects. It is keyed per order,
// so the webhook and the orchestrator may both call it.
func (l *OrderLedger) FinalizeOrder(ctx context.Context, orderID, paymentRef string) error {
	cfg := l.rec.retryPolicy(l.retry, l.log.With(zap.String("order_id", orderID)), "order_finalize")
	_, attempts, err := resilience.Execute(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.FinalizeOrder(ctx, orderID, paymentRef)
	})
	if err != nil {
		l.log.Error("finalize order failed",
			zap.String("order_id", orderID),
			zap.String("finalize_key", models.FinalizeKey(orderID)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return classifyStoreError("Order could not be finalized", err)
	}
	l.log.Info("order finalized", zap.String("order_id", orderID), zap.String("payment_ref", paymentRef))
	return nil
}

func classifyStoreError(message string, err error) error {
	var se *clients.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
		return apperrors.Terminal(http.StatusUnprocessableEntity, message, err)
	}
	if resilience.DefaultRetryPredicate(err) {
		return apperrors.Transient(message, err)
	}
	return apperrors.ErrInternalServer.Wrap(err)
}
