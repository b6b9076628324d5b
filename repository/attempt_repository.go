package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAttemptNotFound is returned when no attempt matches.
var ErrAttemptNotFound = errors.New("checkout attempt not found")

// AttemptRepository persists checkout attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.CheckoutAttempt) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.CheckoutAttempt, error)
	Update(ctx context.Context, id uuid.UUID, upd models.AttemptUpdate) error
	// FindReconcilable returns unreconciled attempts that are flagged for
	// reconciliation or whose pending order outlived its deadline.
	FindReconcilable(ctx context.Context, now time.Time, limit int) ([]models.CheckoutAttempt, error)
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
}

// GormAttemptRepository implements AttemptRepository using GORM.
type GormAttemptRepository struct {
	db *gorm.DB
}

// NewGormAttemptRepository creates a new GormAttemptRepository.
func NewGormAttemptRepository(db *gorm.DB) *GormAttemptRepository {
	return &GormAttemptRepository{db: db}
}

func (r *GormAttemptRepository) Create(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *GormAttemptRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.CheckoutAttempt, error) {
	var a models.CheckoutAttempt
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAttemptRepository) Update(ctx context.Context, id uuid.UUID, upd models.AttemptUpdate) error {
	fields := map[string]interface{}{}
	if upd.State != "" {
		fields["state"] = upd.State
	}
	if upd.OrderID != nil {
		fields["order_id"] = *upd.OrderID
	}
	if upd.PaymentIntentID != nil {
		fields["payment_intent_id"] = *upd.PaymentIntentID
	}
	if upd.PaymentStatus != nil {
		fields["payment_status"] = *upd.PaymentStatus
	}
	if upd.Pricing != nil {
		pricing, err := json.Marshal(upd.Pricing)
		if err != nil {
			return err
		}
		fields["pricing"] = string(pricing)
		fields["total"] = upd.Pricing.Total
		fields["currency"] = upd.Pricing.Currency
	}
	if upd.ErrorKind != nil {
		fields["error_kind"] = *upd.ErrorKind
	}
	if upd.ErrorMessage != nil {
		fields["error_message"] = *upd.ErrorMessage
	}
	if upd.ErrorField != nil {
		fields["error_field"] = *upd.ErrorField
	}
	if upd.ErrorStatus != nil {
		fields["error_status"] = *upd.ErrorStatus
	}
	if upd.Warning != nil {
		fields["warning"] = *upd.Warning
	}
	if upd.PendingDeadline != nil {
		fields["pending_deadline"] = *upd.PendingDeadline
	}
	if upd.NeedsReconcile != nil {
		fields["needs_reconcile"] = *upd.NeedsReconcile
	}
	if upd.ReconcileReason != nil {
		fields["reconcile_reason"] = *upd.ReconcileReason
	}
	if len(fields) == 0 {
		return nil
	}

	res := r.db.WithContext(ctx).Model(&models.CheckoutAttempt{ID: id}).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (r *GormAttemptRepository) FindReconcilable(ctx context.Context, now time.Time, limit int) ([]models.CheckoutAttempt, error) {
	var attempts []models.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("reconciled_at IS NULL AND order_id <> ''").
		Where(r.db.Where("needs_reconcile = ?", true).
			Or("state IN ? AND pending_deadline < ?", []models.CheckoutState{models.CheckoutOrderCreated, models.CheckoutPaymentInFlight}, now)).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *GormAttemptRepository) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{ID: id}).
		Updates(map[string]interface{}{"reconciled_at": at, "needs_reconcile": false}).Error
}
