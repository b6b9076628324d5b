package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"go.uber.org/zap"
)

var errNoReconciliationQueue = errors.New("reconciliation queue not configured")

// Reconciler hands orders whose final state checkout cannot establish to the
// out-of-band reconciliation process through SQS.
type Reconciler struct {
	attempts repository.AttemptRepository
	queue    aws_pkg.SQSSender
	log      *zap.Logger
	batch    int
	now      func() time.Time
}

func NewReconciler(attempts repository.AttemptRepository, queue aws_pkg.SQSSender, log *zap.Logger) *Reconciler {
	return &Reconciler{attempts: attempts, queue: queue, log: log, batch: 100, now: time.Now}
}

// Enqueue sends one attempt to the reconciliation queue and marks it handed off.
func (r *Reconciler) Enqueue(ctx context.Context, a *models.CheckoutAttempt, reason string) error {
	if r.queue == nil {
		return errNoReconciliationQueue
	}
	msg := models.ReconciliationRequest{
		AttemptID:      a.ID.String(),
		IdempotencyKey: a.IdempotencyKey,
		OrderID:        a.OrderID,
		UserID:         a.UserID,
		State:          a.State,
		Reason:         reason,
		IntentID:       a.PaymentIntentID,
		Total:          a.Total,
		Currency:       a.Currency,
		RequestedAt:    r.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.queue.SendMessage(ctx, string(body), a.ID.String()+"-"+reason); err != nil {
		return err
	}
	if err := r.attempts.MarkReconciled(ctx, a.ID, r.now()); err != nil {
		r.log.Error("failed to mark attempt reconciled", zap.String("attempt_id", a.ID.String()), zap.Error(err))
	}
	r.log.Info("order handed to reconciliation",
		zap.String("attempt_id", a.ID.String()),
		zap.String("order_id", a.OrderID),
		zap.String("reason", reason),
	)
	return nil
}

// Sweep enqueues every flagged attempt and every pending order past its
// deadline. It returns how many were handed off.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	attempts, err := r.attempts.FindReconcilable(ctx, r.now(), r.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range attempts {
		a := &attempts[i]
		reason := a.ReconcileReason
		if reason == "" {
			reason = models.ReconcilePendingExpired
		}
		if err := r.Enqueue(ctx, a, reason); err != nil {
			r.log.Error("reconciliation enqueue failed", zap.String("attempt_id", a.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("reconciliation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.log.Info("reconciliation sweep", zap.Int("handed_off", n))
			}
		}
	}
}
