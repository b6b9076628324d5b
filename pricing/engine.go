// Package pricing turns a cart snapshot and the user's checkout selections
// into a priced breakdown. It performs no I/O.
package pricing

import (
	"fmt"
	"strings"
	"unicode"

	"checkout-service/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var hundred = decimal.NewFromInt(100)

// Tables holds the shipping and tax tables used by the engine.
type Tables struct {
	Currency              string
	ShippingTiers         map[models.ShippingMethod]decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	DefaultTaxRate        decimal.Decimal
	// RegionalTaxRates is keyed by normalized region name.
	RegionalTaxRates map[string]decimal.Decimal
}

// DefaultTables returns the EUR storefront tables. The Canary Islands, Ceuta
// and Melilla are outside the VAT area and are zero rated.
func DefaultTables() Tables {
	zero := decimal.Zero
	return Tables{
		Currency: "EUR",
		ShippingTiers: map[models.ShippingMethod]decimal.Decimal{
			models.ShippingStandard: decimal.Zero,
			models.ShippingExpress:  decimal.RequireFromString("4.95"),
			models.ShippingUrgent:   decimal.RequireFromString("9.95"),
		},
		FreeShippingThreshold: decimal.NewFromInt(50),
		DefaultTaxRate:        decimal.RequireFromString("0.21"),
		RegionalTaxRates: map[string]decimal.Decimal{
			"las palmas":             zero,
			"santa cruz de tenerife": zero,
			"ceuta":                  zero,
			"melilla":                zero,
			"es-gc":                  zero,
			"es-tf":                  zero,
			"es-ce":                  zero,
			"es-ml":                  zero,
		},
	}
}

// Input is everything the engine needs for one computation.
type Input struct {
	Cart           models.CartSnapshot
	Coupon         *models.CouponDescriptor
	Region         string
	ShippingMethod models.ShippingMethod
	WalletBalance  decimal.Decimal
	UseWallet      bool
}

// Engine computes pricing breakdowns from fixed tables.
type Engine struct {
	tables Tables
}

func NewEngine(tables Tables) *Engine {
	return &Engine{tables: tables}
}

// Compute returns the breakdown for in. It does not modify in.
func (e *Engine) Compute(in Input) (models.PricingBreakdown, error) {
	subtotal := cents(in.Cart.Subtotal())
	if subtotal.IsNegative() {
		return models.PricingBreakdown{}, fmt.Errorf("negative subtotal %s", subtotal)
	}

	discount, freeShipping, err := CouponDiscount(in.Coupon, subtotal)
	if err != nil {
		return models.PricingBreakdown{}, err
	}

	shipping, err := e.ShippingCost(in.ShippingMethod, subtotal, freeShipping)
	if err != nil {
		return models.PricingBreakdown{}, err
	}

	rate := e.TaxRate(in.Region)
	tax := cents(subtotal.Sub(discount).Mul(rate))

	payable := subtotal.Sub(discount).Add(shipping).Add(tax)
	wallet := decimal.Zero
	if in.UseWallet && in.WalletBalance.IsPositive() {
		wallet = decimal.Min(in.WalletBalance.RoundFloor(2), payable)
	}

	return models.PricingBreakdown{
		Subtotal:       subtotal,
		CouponDiscount: discount,
		ShippingCost:   shipping,
		TaxRate:        rate,
		TaxAmount:      tax,
		WalletDiscount: wallet,
		Total:          payable.Sub(wallet),
		Currency:       e.tables.Currency,
	}, nil
}

// CouponDiscount returns the discount a coupon grants on subtotal and whether
// it waives shipping. A nil coupon yields no discount.
func CouponDiscount(c *models.CouponDescriptor, subtotal decimal.Decimal) (decimal.Decimal, bool, error) {
	if c == nil {
		return decimal.Zero, false, nil
	}
	if c.Value.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("coupon %s has negative value", c.Code)
	}
	switch c.Type {
	case models.CouponTypePercentage:
		if c.Value.GreaterThan(hundred) {
			return decimal.Zero, false, fmt.Errorf("coupon %s percentage %s exceeds 100", c.Code, c.Value)
		}
		return cents(subtotal.Mul(c.Value).Div(hundred)), c.FreeShipping, nil
	case models.CouponTypeFixed:
		return decimal.Min(cents(c.Value), subtotal), c.FreeShipping, nil
	case models.CouponTypeFreeShipping:
		return decimal.Zero, true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unknown coupon type %q", c.Type)
	}
}

// ShippingCost returns the tier price, or zero when shipping is waived or the
// subtotal reaches the free-shipping threshold.
func (e *Engine) ShippingCost(method models.ShippingMethod, subtotal decimal.Decimal, waived bool) (decimal.Decimal, error) {
	cost, ok := e.tables.ShippingTiers[method]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown shipping method %q", method)
	}
	if waived || subtotal.GreaterThanOrEqual(e.tables.FreeShippingThreshold) {
		return decimal.Zero, nil
	}
	return cost, nil
}

// TaxRate returns the single rate that applies to region.
func (e *Engine) TaxRate(region string) decimal.Decimal {
	if rate, ok := e.tables.RegionalTaxRates[NormalizeRegion(region)]; ok {
		return rate
	}
	return e.tables.DefaultTaxRate
}

// NormalizeRegion trims, lowercases and strips accents so "  Cádiz" and
// "cadiz" resolve to the same key.
func NormalizeRegion(region string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, region)
	if err != nil {
		folded = region
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
