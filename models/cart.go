package models

import "github.com/shopspring/decimal"

// CartLine is one item of a cart snapshot.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Total returns UnitPrice * Quantity.
func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is the read-only view of a cart taken once at the start of a
// checkout attempt.
type CartSnapshot struct {
	UserID string     `json:"user_id"`
	Lines  []CartLine `json:"items"`
}

// Subtotal sums every line total.
func (c CartSnapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// IsEmpty reports whether the snapshot has no billable lines.
func (c CartSnapshot) IsEmpty() bool {
	for _, l := range c.Lines {
		if l.Quantity > 0 {
			return false
		}
	}
	return true
}

// Items returns a copy of the lines so the caller's snapshot is never aliased.
func (c CartSnapshot) Items() []CartLine {
	out := make([]CartLine, len(c.Lines))
	copy(out, c.Lines)
	return out
}
