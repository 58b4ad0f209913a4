package payment

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodMBWay Method = "mbway"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodMBWay:
		return true
	}
	return false
}

type MethodAmount struct {
	Method Method          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Discount struct {
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason,omitempty"`
}

// Request settles OrderIDs in one payment. CashReceived only matters when
// a cash method is present.
type Request struct {
	OrderIDs     []uuid.UUID
	Methods      []MethodAmount
	CashReceived *decimal.Decimal
	Tip          decimal.Decimal
	Discount     *Discount
	CustomerName string
	Notes        string
}

type UnitKind string

const (
	Bill UnitKind = "bill"
	Coin UnitKind = "coin"
)

type ChangeUnit struct {
	Denomination decimal.Decimal `json:"denomination"`
	Count        int64           `json:"count"`
	Kind         UnitKind        `json:"kind"`
}

type Computation struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	Change         decimal.Decimal `json:"change"`
	Breakdown      []ChangeUnit    `json:"change_breakdown"`
}

// Payment is the persisted receipt of one settlement.
type Payment struct {
	ID           uuid.UUID        `json:"id"`
	OrderIDs     []uuid.UUID      `json:"order_item_ids"`
	TableIDs     []uuid.UUID      `json:"table_ids"`
	Methods      []MethodAmount   `json:"payment_methods"`
	Discount     *Discount        `json:"discount,omitempty"`
	Tip          decimal.Decimal  `json:"tip_amount"`
	CashReceived *decimal.Decimal `json:"cash_received,omitempty"`
	CustomerName string           `json:"customer_name,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	ProcessedBy  *uuid.UUID       `json:"processed_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Computation
}

// MethodLabel is the value stored on each settled order, e.g. "cash+card".
func (p *Payment) MethodLabel() string {
	label := ""
	seen := make(map[Method]bool)
	for _, m := range p.Methods {
		if seen[m.Method] {
			continue
		}
		seen[m.Method] = true
		if label != "" {
			label += "+"
		}
		label += string(m.Method)
	}
	return label
}

type Filter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}
