package models

import (
	"regexp"
	"strings"
)

// ShippingInfo is the delivery address collected at checkout.
type ShippingInfo struct {
	FullName     string `json:"full_name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Phone        string `json:"phone" validate:"required,min=6,max=20"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	Region       string `json:"region" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,numeric,len=5"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// BillingInfo falls back to the shipping address when SameAsShipping is set.
type BillingInfo struct {
	SameAsShipping bool   `json:"same_as_shipping"`
	FullName       string `json:"full_name,omitempty" validate:"required_unless=SameAsShipping true,max=100"`
	TaxID          string `json:"tax_id,omitempty" validate:"omitempty,alphanum,max=20"`
	AddressLine1   string `json:"address_line1,omitempty" validate:"required_unless=SameAsShipping true,max=200"`
	City           string `json:"city,omitempty" validate:"required_unless=SameAsShipping true,max=100"`
	PostalCode     string `json:"postal_code,omitempty" validate:"omitempty,numeric,len=5"`
}

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// RequiresConfirmation reports whether the method needs a live gateway round-trip.
func (m PaymentMethod) RequiresConfirmation() bool {
	return m == PaymentMethodCard
}

// PaymentInput carries only the opaque reference produced by the hosted
// payment widget. Card numbers never reach this service.
type PaymentInput struct {
	WidgetToken string `json:"widget_token"`
}

var panPattern = regexp.MustCompile(`^[0-9]{12,19}$`)

// LooksLikeCardNumber reports whether the widget token is actually a PAN.
func (p PaymentInput) LooksLikeCardNumber() bool {
	s := strings.NewReplacer(" ", "", "-", "").Replace(p.WidgetToken)
	return panPattern.MatchString(s)
}

// CheckoutRequest is what the storefront submits when the user places an order.
type CheckoutRequest struct {
	Shipping       ShippingInfo   `json:"shipping"`
	Billing        BillingInfo    `json:"billing"`
	ShippingMethod ShippingMethod `json:"shipping_method" validate:"required,oneof=standard express urgent"`
	PaymentMethod  PaymentMethod  `json:"payment_method" validate:"required,oneof=card bank_transfer cash_on_delivery"`
	Payment        PaymentInput   `json:"payment"`
	CouponCode     string         `json:"coupon_code,omitempty" validate:"max=40"`
	UseWallet      bool           `json:"use_wallet"`
}

// QuoteRequest asks for a pricing breakdown without placing an order.
type QuoteRequest struct {
	Region         string         `json:"region" binding:"required"`
	ShippingMethod ShippingMethod `json:"shipping_method" binding:"required,oneof=standard express urgent"`
	CouponCode     string         `json:"coupon_code,omitempty"`
	UseWallet      bool           `json:"use_wallet"`
}

// CouponValidateRequest is the body of the coupon check endpoint.
type CouponValidateRequest struct {
	Code string `json:"code" binding:"required"`
}

// PlaceOrderInput is a single user-initiated checkout attempt.
type PlaceOrderInput struct {
	UserID         string
	IdempotencyKey string
	Cart           CartSnapshot
	Request        CheckoutRequest
}
