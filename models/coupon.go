package models

import "github.com/shopspring/decimal"

type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFixed        CouponType = "fixed"
	CouponTypeFreeShipping CouponType = "free_shipping"
)

// CouponDescriptor is a coupon verdict fetched for one checkout attempt.
// DiscountAmount is set by the orchestrator from the computed breakdown.
type CouponDescriptor struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Type           CouponType      `json:"type"`
	Value          decimal.Decimal `json:"value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FreeShipping   bool            `json:"free_shipping"`
}
