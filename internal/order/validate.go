package order

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

// ParseID parses a non-nil UUID, reporting failures against field.
func ParseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.Fieldf(field, "invalid id %q", raw)
	}
	return id, nil
}

// ParsePrice accepts a positive amount with at most two decimal places.
func ParsePrice(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, apperr.Field(field, "is required")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Fieldf(field, "%q is not a number", raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, apperr.Field(field, "must be greater than zero")
	}
	if !price.Equal(price.Round(2)) {
		return decimal.Zero, apperr.Field(field, "must have at most two decimal places")
	}
	return price, nil
}

// ParseStatus accepts only the editable labels; "pago" is reserved for settlement.
func ParseStatus(field, raw string) (Status, error) {
	s := Status(raw)
	if s.Editable() {
		return s, nil
	}
	if s == StatusPaid {
		return "", apperr.Field(field, "orders are marked paid only through a payment")
	}
	return "", apperr.Fieldf(field, "unknown status %q", raw)
}

// build validates n and turns it into a pending order. prefix scopes field
// names, e.g. "orders[2]." inside a batch.
func (n NewOrder) build(prefix string) (*Order, error) {
	if len(n.TableIDs) == 0 {
		return nil, apperr.Field(prefix+"table_ids", "must be a non-empty array")
	}

	tableIDs := make([]uuid.UUID, 0, len(n.TableIDs))
	seen := make(map[uuid.UUID]struct{}, len(n.TableIDs))
	for i, raw := range n.TableIDs {
		id, err := ParseID(fmt.Sprintf("%stable_ids[%d]", prefix, i), raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tableIDs = append(tableIDs, id)
	}

	menuItemID, err := ParseID(prefix+"menu_item_id", n.MenuItemID)
	if err != nil {
		return nil, err
	}

	price, err := ParsePrice(prefix+"price", n.Price)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	return &Order{
		ID:         id,
		TableIDs:   tableIDs,
		MenuItemID: menuItemID,
		Status:     StatusPending,
		Notes:      strings.TrimSpace(n.Notes),
		Price:      price,
	}, nil
}

type patch struct {
	status *Status
	notes  *string
	price  *decimal.Decimal
}

func (p OrderPatch) parse() (patch, error) {
	var out patch
	if p.Status == nil && p.Notes == nil && p.Price == nil {
		return out, apperr.Field("body", "nothing to update")
	}
	if p.Status != nil {
		s, err := ParseStatus("status", *p.Status)
		if err != nil {
			return out, err
		}
		out.status = &s
	}
	if p.Notes != nil {
		notes := strings.TrimSpace(*p.Notes)
		out.notes = &notes
	}
	if p.Price != nil {
		price, err := ParsePrice("price", *p.Price)
		if err != nil {
			return out, err
		}
		out.price = &price
	}
	return out, nil
}

// apply mutates o. A paid order keeps its status and price.
func (p patch) apply(o *Order) error {
	if o.IsPaid() {
		if p.status != nil {
			return apperr.Conflict("order %s is paid, its status can no longer change", o.ID)
		}
		if p.price != nil && !p.price.Equal(o.Price) {
			return apperr.Conflict("order %s is paid, its price can no longer change", o.ID)
		}
	}
	if p.status != nil {
		o.Status = *p.status
	}
	if p.notes != nil {
		o.Notes = *p.notes
	}
	if p.price != nil {
		o.Price = *p.price
	}
	return nil
}
