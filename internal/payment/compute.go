package payment

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.New(1, -2)
)

// Validate checks the shape of r. Amount checks that depend on the orders'
// prices happen in Compute.
func (r Request) Validate() error {
	if len(r.OrderIDs) == 0 {
		return apperr.Field("order_item_ids", "must be a non-empty array")
	}
	seen := make(map[uuid.UUID]struct{}, len(r.OrderIDs))
	for i, id := range r.OrderIDs {
		if id == uuid.Nil {
			return apperr.Fieldf(fmt.Sprintf("order_item_ids[%d]", i), "invalid id")
		}
		if _, dup := seen[id]; dup {
			return apperr.Fieldf(fmt.Sprintf("order_item_ids[%d]", i), "order %s listed twice", id)
		}
		seen[id] = struct{}{}
	}

	if len(r.Methods) == 0 {
		return apperr.Field("payment_methods", "must be a non-empty array")
	}
	for i, m := range r.Methods {
		field := fmt.Sprintf("payment_methods[%d]", i)
		if !m.Method.Valid() {
			return apperr.Fieldf(field+".method", "unknown payment method %q", m.Method)
		}
		if m.Amount.IsNegative() {
			return apperr.Field(field+".amount", "must not be negative")
		}
	}

	if r.Tip.IsNegative() {
		return apperr.Field("tip_amount", "must not be negative")
	}
	if r.CashReceived != nil && r.CashReceived.IsNegative() {
		return apperr.Field("cash_received", "must not be negative")
	}
	if d := r.Discount; d != nil {
		if d.Type != DiscountPercentage && d.Type != DiscountFixed {
			return apperr.Fieldf("discount.type", "must be %q or %q", DiscountPercentage, DiscountFixed)
		}
		if d.Value.IsNegative() {
			return apperr.Field("discount.value", "must not be negative")
		}
	}
	return nil
}

// Compute derives every amount of a settlement from the orders' subtotal.
// It is pure and runs before any row is touched.
func Compute(subtotal decimal.Decimal, r Request) (Computation, error) {
	c := Computation{
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
		Change:         decimal.Zero,
		Breakdown:      []ChangeUnit{},
	}

	discount := decimal.Zero
	if d := r.Discount; d != nil {
		discount = d.Value
		if d.Type == DiscountPercentage {
			discount = subtotal.Mul(d.Value).Div(hundred)
		}
		discount = clamp(discount, decimal.Zero, subtotal)
	}

	// The total rounds the exact difference; the stored discount is what
	// that rounding actually took off.
	c.Total = subtotal.Sub(discount).Round(2)
	if c.Total.IsNegative() {
		c.Total = decimal.Zero
	}
	if r.Discount != nil {
		c.DiscountAmount = subtotal.Sub(c.Total)
	}

	paid, hasCash := decimal.Zero, false
	for _, m := range r.Methods {
		paid = paid.Add(m.Amount)
		if m.Method == MethodCash {
			hasCash = true
		}
	}
	if paid.Sub(c.Total).Abs().GreaterThan(tolerance) {
		return Computation{}, apperr.Fieldf("payment_methods",
			"amounts add up to %s but the total is %s", paid.StringFixed(2), c.Total.StringFixed(2))
	}

	if hasCash && r.CashReceived != nil && r.CashReceived.GreaterThan(c.Total) {
		c.Change = r.CashReceived.Sub(c.Total).Round(2)
		c.Breakdown = ChangeBreakdown(c.Change)
	}
	return c, nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
