package pricing

import (
	"math/rand"
	"testing"

	"checkout-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cartOf(amount string) models.CartSnapshot {
	return models.CartSnapshot{Lines: []models.CartLine{{ProductID: "p1", Name: "Item", UnitPrice: dec(amount), Quantity: 1}}}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

func TestCompute_MadridWithPercentageCoupon(t *testing.T) {
	e := NewEngine(DefaultTables())
	coupon := &models.CouponDescriptor{Code: "SAVE10", Type: models.CouponTypePercentage, Value: dec("10")}

	b, err := e.Compute(Input{
		Cart:           cartOf("100"),
		Coupon:         coupon,
		Region:         "Madrid",
		ShippingMethod: models.ShippingStandard,
	})

	require.NoError(t, err)
	assertDec(t, "100", b.Subtotal, "subtotal")
	assertDec(t, "10", b.CouponDiscount, "discount")
	assert.True(t, coupon.DiscountAmount.IsZero(), "input coupon is not modified")
	assertDec(t, "0.21", b.TaxRate, "rate")
	assertDec(t, "18.90", b.TaxAmount, "tax")
	assertDec(t, "0", b.ShippingCost, "shipping")
	assertDec(t, "0", b.WalletDiscount, "wallet")
	assertDec(t, "108.90", b.Total, "total")
	assert.Equal(t, "EUR", b.Currency)
}

func TestCompute_LasPalmasExpress(t *testing.T) {
	e := NewEngine(DefaultTables())

	b, err := e.Compute(Input{Cart: cartOf("30"), Region: "Las Palmas", ShippingMethod: models.ShippingExpress})

	require.NoError(t, err)
	assertDec(t, "0", b.TaxRate, "rate")
	assertDec(t, "4.95", b.ShippingCost, "shipping")
	assertDec(t, "34.95", b.Total, "total")
}

func TestCompute_FreeShippingThreshold(t *testing.T) {
	e := NewEngine(DefaultTables())
	for _, m := range []models.ShippingMethod{models.ShippingStandard, models.ShippingExpress, models.ShippingUrgent} {
		b, err := e.Compute(Input{Cart: cartOf("50"), Region: "Madrid", ShippingMethod: m})
		require.NoError(t, err)
		assertDec(t, "0", b.ShippingCost, string(m))
	}

	b, err := e.Compute(Input{Cart: cartOf("49.99"), Region: "Madrid", ShippingMethod: models.ShippingUrgent})
	require.NoError(t, err)
	assertDec(t, "9.95", b.ShippingCost, "below threshold")
}

func TestCompute_FreeShippingCoupon(t *testing.T) {
	e := NewEngine(DefaultTables())
	coupon := &models.CouponDescriptor{Code: "SHIPFREE", Type: models.CouponTypeFreeShipping}

	b, err := e.Compute(Input{Cart: cartOf("20"), Coupon: coupon, Region: "Ceuta", ShippingMethod: models.ShippingUrgent})

	require.NoError(t, err)
	assertDec(t, "0", b.ShippingCost, "shipping")
	assertDec(t, "0", b.CouponDiscount, "discount")
	assertDec(t, "20", b.Total, "total")
}

func TestCompute_FixedCouponCappedAtSubtotal(t *testing.T) {
	e := NewEngine(DefaultTables())
	coupon := &models.CouponDescriptor{Code: "BIG", Type: models.CouponTypeFixed, Value: dec("80")}

	b, err := e.Compute(Input{Cart: cartOf("60"), Coupon: coupon, Region: "Madrid", ShippingMethod: models.ShippingStandard})

	require.NoError(t, err)
	assertDec(t, "60", b.CouponDiscount, "discount")
	assertDec(t, "0", b.TaxAmount, "tax")
	assertDec(t, "0", b.Total, "total")
}

func TestCompute_TaxExcludesShipping(t *testing.T) {
	e := NewEngine(DefaultTables())

	b, err := e.Compute(Input{Cart: cartOf("10"), Region: "Madrid", ShippingMethod: models.ShippingExpress})

	require.NoError(t, err)
	assertDec(t, "2.10", b.TaxAmount, "tax")
	assertDec(t, "17.05", b.Total, "total")
}

func TestCompute_WalletCappedAtPayable(t *testing.T) {
	e := NewEngine(DefaultTables())

	b, err := e.Compute(Input{Cart: cartOf("30"), Region: "Las Palmas", ShippingMethod: models.ShippingExpress, WalletBalance: dec("500"), UseWallet: true})
	require.NoError(t, err)
	assertDec(t, "34.95", b.WalletDiscount, "wallet")
	assertDec(t, "0", b.Total, "total")

	b, err = e.Compute(Input{Cart: cartOf("30"), Region: "Las Palmas", ShippingMethod: models.ShippingExpress, WalletBalance: dec("5"), UseWallet: true})
	require.NoError(t, err)
	assertDec(t, "5", b.WalletDiscount, "wallet")
	assertDec(t, "29.95", b.Total, "total")

	b, err = e.Compute(Input{Cart: cartOf("30"), Region: "Las Palmas", ShippingMethod: models.ShippingExpress, WalletBalance: dec("10.005"), UseWallet: true})
	require.NoError(t, err)
	assertDec(t, "10", b.WalletDiscount, "sub-cent balance never rounds up")
	assertDec(t, "24.95", b.Total, "total")
}

func TestCompute_WalletIgnoredWithoutOptIn(t *testing.T) {
	e := NewEngine(DefaultTables())

	b, err := e.Compute(Input{Cart: cartOf("30"), Region: "Madrid", ShippingMethod: models.ShippingStandard, WalletBalance: dec("10")})

	require.NoError(t, err)
	assertDec(t, "0", b.WalletDiscount, "wallet")
}

func TestCompute_RejectsInvalidInput(t *testing.T) {
	e := NewEngine(DefaultTables())

	_, err := e.Compute(Input{Cart: cartOf("30"), Coupon: &models.CouponDescriptor{Type: models.CouponTypePercentage, Value: dec("120")}, ShippingMethod: models.ShippingStandard})
	assert.Error(t, err)

	_, err = e.Compute(Input{Cart: cartOf("30"), ShippingMethod: "drone"})
	assert.Error(t, err)

	_, err = e.Compute(Input{Cart: cartOf("30"), Coupon: &models.CouponDescriptor{Type: "bogo"}, ShippingMethod: models.ShippingStandard})
	assert.Error(t, err)
}

func TestTaxRate_RegionNormalization(t *testing.T) {
	e := NewEngine(DefaultTables())

	assertDec(t, "0", e.TaxRate("  LAS   PALMAS "), "las palmas")
	assertDec(t, "0", e.TaxRate("Santa Cruz de Tenerife"), "tenerife")
	assertDec(t, "0", e.TaxRate("Mélilla"), "accented melilla")
	assertDec(t, "0.21", e.TaxRate("Cádiz"), "cadiz")
	assertDec(t, "0.21", e.TaxRate(""), "empty")
	assert.Equal(t, "cadiz", NormalizeRegion(" Cádiz "))
}

func TestCompute_TotalInvariantHolds(t *testing.T) {
	e := NewEngine(DefaultTables())
	rng := rand.New(rand.NewSource(7))
	methods := []models.ShippingMethod{models.ShippingStandard, models.ShippingExpress, models.ShippingUrgent}
	regions := []string{"Madrid", "Las Palmas", "Ceuta", "Valencia"}

	for i := 0; i < 500; i++ {
		subtotal := decimal.New(rng.Int63n(20000), -2)
		var coupon *models.CouponDescriptor
		switch rng.Intn(4) {
		case 1:
			coupon = &models.CouponDescriptor{Type: models.CouponTypePercentage, Value: decimal.NewFromInt(rng.Int63n(101))}
		case 2:
			coupon = &models.CouponDescriptor{Type: models.CouponTypeFixed, Value: decimal.New(rng.Int63n(30000), -2)}
		case 3:
			coupon = &models.CouponDescriptor{Type: models.CouponTypeFreeShipping}
		}
		balance := decimal.New(rng.Int63n(30000), -2)

		b, err := e.Compute(Input{
			Cart:           models.CartSnapshot{Lines: []models.CartLine{{UnitPrice: subtotal, Quantity: 1}}},
			Coupon:         coupon,
			Region:         regions[rng.Intn(len(regions))],
			ShippingMethod: methods[rng.Intn(len(methods))],
			WalletBalance:  balance,
			UseWallet:      rng.Intn(2) == 1,
		})
		require.NoError(t, err)

		want := b.Subtotal.Sub(b.CouponDiscount).Sub(b.WalletDiscount).Add(b.ShippingCost).Add(b.TaxAmount)
		assert.True(t, want.Equal(b.Total), "total mismatch at %d", i)
		assert.False(t, b.Total.IsNegative(), "negative total at %d", i)
		assert.True(t, b.CouponDiscount.LessThanOrEqual(b.Subtotal))
		assert.True(t, b.WalletDiscount.LessThanOrEqual(balance))
		if b.Subtotal.GreaterThanOrEqual(decimal.NewFromInt(50)) {
			assert.True(t, b.ShippingCost.IsZero())
		}
	}
}
