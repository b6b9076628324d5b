package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CheckoutAttempt is the persisted log of one placeOrder call.
type CheckoutAttempt struct {
	ID              uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	IdempotencyKey  string           `gorm:"type:varchar(100);uniqueIndex;not null" json:"idempotency_key"`
	UserID          string           `gorm:"type:varchar(64);index;not null" json:"user_id"`
	OrderID         string           `gorm:"type:varchar(64);index" json:"order_id,omitempty"`
	State           CheckoutState    `gorm:"type:varchar(32);index;not null" json:"state"`
	PaymentMethod   PaymentMethod    `gorm:"type:varchar(32);not null" json:"payment_method"`
	PaymentIntentID string           `gorm:"type:varchar(128)" json:"payment_intent_id,omitempty"`
	PaymentStatus   string           `gorm:"type:varchar(32)" json:"payment_status,omitempty"`
	Total           decimal.Decimal  `gorm:"type:numeric(12,2)" json:"total"`
	Pricing         PricingBreakdown `gorm:"type:jsonb;serializer:json" json:"pricing"`
	Currency        string           `gorm:"type:varchar(10)" json:"currency"`
	ErrorKind       string           `gorm:"type:varchar(32)" json:"error_kind,omitempty"`
	ErrorMessage    string           `gorm:"type:text" json:"error_message,omitempty"`
	ErrorField      string           `gorm:"type:varchar(100)" json:"error_field,omitempty"`
	ErrorStatus     int              `json:"-"`
	Warning         string           `gorm:"type:text" json:"warning,omitempty"`
	PendingDeadline *time.Time       `gorm:"index" json:"pending_deadline,omitempty"`
	NeedsReconcile  bool             `gorm:"not null;default:false" json:"needs_reconcile"`
	ReconcileReason string           `gorm:"type:varchar(64)" json:"reconcile_reason,omitempty"`
	ReconciledAt    *time.Time       `json:"reconciled_at,omitempty"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt   `gorm:"index" json:"-"`
}

// OrderOutcome is the single terminal result of a checkout attempt.
type OrderOutcome struct {
	AttemptID      string           `json:"attempt_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	OrderID        string           `json:"order_id,omitempty"`
	State          CheckoutState    `json:"state"`
	Pricing        PricingBreakdown `json:"pricing"`
	PaymentStatus  string           `json:"payment_status,omitempty"`
	RedirectURL    string           `json:"redirect_url,omitempty"`
	Warning        string           `json:"warning,omitempty"`
}

// AttemptUpdate lists the attempt fields that change after creation. Nil
// pointers are left untouched.
type AttemptUpdate struct {
	State           CheckoutState
	OrderID         *string
	PaymentIntentID *string
	PaymentStatus   *string
	Pricing         *PricingBreakdown
	ErrorKind       *string
	ErrorMessage    *string
	ErrorField      *string
	ErrorStatus     *int
	Warning         *string
	PendingDeadline *time.Time
	NeedsReconcile  *bool
	ReconcileReason *string
}

// Outcome rebuilds the terminal result stored for a completed attempt.
func (a *CheckoutAttempt) Outcome() OrderOutcome {
	return OrderOutcome{
		AttemptID:      a.ID.String(),
		IdempotencyKey: a.IdempotencyKey,
		OrderID:        a.OrderID,
		State:          a.State,
		Pricing:        a.Pricing,
		PaymentStatus:  a.PaymentStatus,
		Warning:        a.Warning,
	}
}

// ReconciliationRequest is the message handed to the reconciliation queue.
type ReconciliationRequest struct {
	AttemptID      string          `json:"attempt_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	State          CheckoutState   `json:"state"`
	Reason         string          `json:"reason"`
	IntentID       string          `json:"payment_intent_id,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	RequestedAt    time.Time       `json:"requested_at"`
}

// Reconciliation reasons.
const (
	ReconcileConsistencyRisk = "consistency_risk"
	ReconcileFinalizeFailed  = "finalize_failed"
	ReconcilePendingExpired  = "pending_expired"
	ReconcileCancelFailed    = "cancel_failed"
)
