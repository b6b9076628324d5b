package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderDraft is the priced order sent to the order store.
type OrderDraft struct {
	UserID        string           `json:"user_id"`
	Items         []CartLine       `json:"items"`
	Shipping      ShippingInfo     `json:"shipping_info"`
	Billing       BillingInfo      `json:"billing_info"`
	Pricing       PricingBreakdown `json:"pricing"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	CouponCode    string           `json:"coupon_code,omitempty"`
	UseWallet     bool             `json:"use_wallet"`
}

// Order is the durable entity owned by the order store.
type Order struct {
	ID             string           `json:"id"`
	IdempotencyKey string           `json:"idempotency_key"`
	Status         OrderStatus      `json:"status"`
	Items          []CartLine       `json:"items"`
	Shipping       ShippingInfo     `json:"shipping_info"`
	Billing        BillingInfo      `json:"billing_info"`
	Pricing        PricingBreakdown `json:"pricing"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
	CreatedAt      time.Time        `json:"created_at"`
}

// FinalizeKey is the idempotency key for the finalize call of orderID. The
// orchestrator and the webhook both use it so duplicate delivery collapses.
func FinalizeKey(orderID string) string {
	return "finalize-" + orderID
}
