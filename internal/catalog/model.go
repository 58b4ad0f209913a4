// Package catalog reads the reference data owned by out-of-process collaborators:
// menu items, tables and staff users. Nothing here writes.
package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableOccupied TableStatus = "occupied"
)

type MenuItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Available bool            `json:"available" db:"available"`
}

type Table struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	LayoutID    uuid.UUID   `json:"layout_id" db:"layout_id"`
	TableNumber int         `json:"table_number" db:"table_number"`
	Status      TableStatus `json:"status" db:"status"`
}

type User struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Email        string         `json:"email" db:"email"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
