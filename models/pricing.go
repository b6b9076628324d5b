package models

import "github.com/shopspring/decimal"

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
	ShippingUrgent   ShippingMethod = "urgent"
)

// PricingBreakdown is computed per request and never cached.
type PricingBreakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	WalletDiscount decimal.Decimal `json:"wallet_discount"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// TotalMinorUnits returns Total in cents for the payment gateway.
func (p PricingBreakdown) TotalMinorUnits() int64 {
	return p.Total.Shift(2).Round(0).IntPart()
}
