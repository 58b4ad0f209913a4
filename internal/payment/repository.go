package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
)

// PrepareFunc builds the payment for the locked orders or rejects the settlement.
type PrepareFunc func(orders []order.Order) (*Payment, error)

type Repository interface {
	// Settle locks the orders, lets prepare compute the payment, marks every
	// order paid and restores table occupancy, all in one transaction.
	Settle(ctx context.Context, orderIDs []uuid.UUID, prepare PrepareFunc) (*Payment, []order.TableState, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	List(ctx context.Context, filter Filter) ([]Payment, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

// CheckSettleable rejects a settlement when an id is unknown or already paid.
func CheckSettleable(ids []uuid.UUID, found []order.Order) error {
	byID := make(map[uuid.UUID]*order.Order, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			return apperr.NotFound("order", id)
		}
		if o.IsPaid() {
			return apperr.Conflict("order %s is already paid", id)
		}
	}
	return nil
}

func (r *postgresRepository) Settle(ctx context.Context, orderIDs []uuid.UUID, prepare PrepareFunc) (*Payment, []order.TableState, error) {
	var (
		p       *Payment
		changed []order.TableState
	)

	err := db.WithTx(ctx, r.db, "settle payment", func(tx pgx.Tx) error {
		locked, err := order.LockOrders(ctx, tx, orderIDs)
		if err != nil {
			return err
		}
		if err := CheckSettleable(orderIDs, locked); err != nil {
			return err
		}

		p, err = prepare(locked)
		if err != nil {
			return err
		}

		if err := order.LockTables(ctx, tx, p.TableIDs); err != nil {
			return err
		}
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = 'pago', payment_id = $1, payment_method = $2, updated_at = $3
			WHERE id = ANY($4::uuid[]) AND status <> 'pago'
		`, p.ID, p.MethodLabel(), p.CreatedAt, idStrings(orderIDs))
		if err != nil {
			return fmt.Errorf("repository: failed to mark orders paid: %w", err)
		}
		if tag.RowsAffected() != int64(len(orderIDs)) {
			return apperr.Conflict("only %d of %d orders could be marked paid", tag.RowsAffected(), len(orderIDs))
		}

		changed, err = order.RecomputeTables(ctx, tx, p.TableIDs)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return p, changed, nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *Payment) error {
	methods, err := json.Marshal(p.Methods)
	if err != nil {
		return fmt.Errorf("repository: failed to encode payment methods: %w", err)
	}
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("repository: failed to encode change breakdown: %w", err)
	}

	var discountType, discountReason string
	discountValue := decimal.Zero
	if p.Discount != nil {
		discountType, discountValue, discountReason = string(p.Discount.Type), p.Discount.Value, p.Discount.Reason
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (
			id, subtotal, discount_type, discount_value, discount_reason, discount_amount,
			total, tip_amount, cash_received, change_amount, methods, change_breakdown,
			order_ids, table_ids, customer_name, notes, processed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::uuid[], $14::uuid[], $15, $16, $17, $18)
	`,
		p.ID, p.Subtotal, discountType, discountValue, discountReason, p.DiscountAmount,
		p.Total, p.Tip, p.CashReceived, p.Change, methods, breakdown,
		idStrings(p.OrderIDs), idStrings(p.TableIDs), p.CustomerName, p.Notes, p.ProcessedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment %s: %w", p.ID, err)
	}
	return nil
}

const selectPayments = `
	SELECT id, subtotal, discount_type, discount_value, discount_reason, discount_amount,
		total, tip_amount, cash_received, change_amount, methods, change_breakdown,
		order_ids::text[], table_ids::text[], customer_name, notes, processed_by, created_at
	FROM payments
`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	payments, err := r.query(ctx, selectPayments+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, apperr.NotFound("payment", id)
	}
	return &payments[0], nil
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := selectPayments
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *postgresRepository) query(ctx context.Context, query string, args ...any) ([]Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		var (
			p                            Payment
			discountType, discountReason string
			discountValue                decimal.Decimal
			cashReceived                 decimal.NullDecimal
			methods, breakdown           []byte
			orderIDs, tableIDs           []string
			processedBy                  uuid.NullUUID
		)
		err := rows.Scan(
			&p.ID, &p.Subtotal, &discountType, &discountValue, &discountReason, &p.DiscountAmount,
			&p.Total, &p.Tip, &cashReceived, &p.Change, &methods, &breakdown,
			&orderIDs, &tableIDs, &p.CustomerName, &p.Notes, &processedBy, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment: %w", err)
		}

		if discountType != "" {
			p.Discount = &Discount{Type: DiscountType(discountType), Value: discountValue, Reason: discountReason}
		}
		if cashReceived.Valid {
			p.CashReceived = &cashReceived.Decimal
		}
		if processedBy.Valid {
			p.ProcessedBy = &processedBy.UUID
		}
		if err := json.Unmarshal(methods, &p.Methods); err != nil {
			return nil, fmt.Errorf("repository: payment %s has malformed methods: %w", p.ID, err)
		}
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return nil, fmt.Errorf("repository: payment %s has malformed change breakdown: %w", p.ID, err)
		}
		if p.OrderIDs, err = parseIDs(orderIDs); err != nil {
			return nil, fmt.Errorf("repository: payment %s: %w", p.ID, err)
		}
		if p.TableIDs, err = parseIDs(tableIDs); err != nil {
			return nil, fmt.Errorf("repository: payment %s: %w", p.ID, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating payments: %w", err)
	}
	return payments, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.FromString(s)
		if err != nil {
			return nil, fmt.Errorf("malformed id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func now() time.Time {
	return time.Now().UTC()
}
