package payment

import "github.com/shopspring/decimal"

type denomination struct {
	value decimal.Decimal
	kind  UnitKind
}

// Euro denominations, largest first. The greedy walk in ChangeBreakdown gives
// a minimal count only because this set is canonical; a different set needs an
// exact minimal-count search instead.
var denominations = []denomination{
	{decimal.NewFromInt(500), Bill},
	{decimal.NewFromInt(200), Bill},
	{decimal.NewFromInt(100), Bill},
	{decimal.NewFromInt(50), Bill},
	{decimal.NewFromInt(20), Bill},
	{decimal.NewFromInt(10), Bill},
	{decimal.NewFromInt(5), Bill},
	{decimal.NewFromInt(2), Coin},
	{decimal.NewFromInt(1), Coin},
	{decimal.New(50, -2), Coin},
	{decimal.New(20, -2), Coin},
	{decimal.New(10, -2), Coin},
	{decimal.New(5, -2), Coin},
	{decimal.New(2, -2), Coin},
	{decimal.New(1, -2), Coin},
}

// ChangeBreakdown splits change into notes and coins, largest first.
// Amounts below one cent are dropped.
func ChangeBreakdown(change decimal.Decimal) []ChangeUnit {
	units := make([]ChangeUnit, 0)
	remaining := change.Round(2)
	if !remaining.IsPositive() {
		return units
	}

	for _, d := range denominations {
		if remaining.LessThan(d.value) {
			continue
		}
		count := remaining.Div(d.value).Floor()
		units = append(units, ChangeUnit{Denomination: d.value, Count: count.IntPart(), Kind: d.kind})
		remaining = remaining.Sub(d.value.Mul(count))
		if remaining.IsZero() {
			break
		}
	}
	return units
}

// Sum reconstructs the amount a breakdown pays out.
func Sum(units []ChangeUnit) decimal.Decimal {
	total := decimal.Zero
	for _, u := range units {
		total = total.Add(u.Denomination.Mul(decimal.NewFromInt(u.Count)))
	}
	return total
}
