package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
)

type Status string

const (
	StatusPending    Status = "pendente"
	StatusAccepted   Status = "aceite"
	StatusReady      Status = "pronto"
	StatusDelivering Status = "a ser entregue"
	StatusDelivered  Status = "entregue"
	StatusCompleted  Status = "completo"
	StatusCancelled  Status = "cancelado"

	// StatusPaid is terminal and set only by settlement.
	StatusPaid Status = "pago"
)

// EditableStatuses may replace one another freely through an update.
var EditableStatuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusReady,
	StatusDelivering,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Editable() bool {
	for _, e := range EditableStatuses {
		if s == e {
			return true
		}
	}
	return false
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	TableIDs      []uuid.UUID     `json:"table_ids"`
	MenuItemID    uuid.UUID       `json:"menu_item_id"`
	MenuItemName  string          `json:"menu_item_name,omitempty"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	Price         decimal.Decimal `json:"price"`
	PaymentID     *uuid.UUID      `json:"payment_id,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CreatedBy     *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// NewOrder is an unvalidated create request. Ids and price arrive as text
// and are parsed during validation.
type NewOrder struct {
	TableIDs   []string
	MenuItemID string
	Notes      string
	Price      string
}

// OrderPatch carries the optional fields of an update; nil means unchanged.
type OrderPatch struct {
	Status *string
	Notes  *string
	Price  *string
}

type Filter struct {
	TableID     *uuid.UUID
	Status      *Status
	IncludePaid bool
}

// TableState is a table whose occupancy changed inside a transaction.
type TableState struct {
	ID          uuid.UUID           `json:"id"`
	LayoutID    uuid.UUID           `json:"layout_id"`
	TableNumber int                 `json:"table_number"`
	Status      catalog.TableStatus `json:"status"`
}
