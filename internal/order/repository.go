package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

type Repository interface {
	// Create inserts every order in one transaction and marks their tables
	// occupied. It returns the tables whose status changed.
	Create(ctx context.Context, orders []*Order) ([]TableState, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, filter Filter) ([]Order, error)
	// Update locks the order, lets apply mutate it and persists the result.
	Update(ctx context.Context, id uuid.UUID, apply func(*Order) error) (*Order, error)
	// Delete removes the order and frees tables it leaves without unpaid orders.
	Delete(ctx context.Context, id uuid.UUID) (*Order, []TableState, error)
}

// Querier is the subset of pgx shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

const selectOrders = `
	SELECT o.id, o.menu_item_id, m.name, o.status, o.notes, o.price,
		o.payment_id, o.payment_method, o.created_by, o.created_at, o.updated_at,
		COALESCE(array_agg(ot.table_id::text ORDER BY ot.position) FILTER (WHERE ot.table_id IS NOT NULL), '{}')
	FROM orders o
	JOIN menu_items m ON m.id = o.menu_item_id
	LEFT JOIN order_tables ot ON ot.order_id = o.id
`

func (r *postgresRepository) Create(ctx context.Context, orders []*Order) ([]TableState, error) {
	var changed []TableState

	err := db.WithTx(ctx, r.db, "create orders", func(tx pgx.Tx) error {
		now := time.Now().UTC()
		touched := make([]uuid.UUID, 0)
		for _, o := range orders {
			touched = append(touched, o.TableIDs...)
		}
		if err := LockTables(ctx, tx, touched); err != nil {
			return err
		}

		for i, o := range orders {
			o.CreatedAt, o.UpdatedAt = now, now

			_, err := tx.Exec(ctx, `
				INSERT INTO orders (id, menu_item_id, status, notes, price, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, o.ID, o.MenuItemID, string(o.Status), o.Notes, o.Price, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
			if err != nil {
				return mapWriteError(err, o, i)
			}

			for pos, tableID := range o.TableIDs {
				_, err = tx.Exec(ctx, `
					INSERT INTO order_tables (order_id, table_id, position) VALUES ($1, $2, $3)
				`, o.ID, tableID, pos)
				if err != nil {
					return mapWriteError(err, o, i)
				}
			}
		}

		var err error
		changed, err = RecomputeTables(ctx, tx, touched)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	orders, err := LoadOrders(ctx, r.db, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.NotFound("order", id)
	}
	return &orders[0], nil
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.TableID != nil {
		args = append(args, *filter.TableID)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM order_tables f WHERE f.order_id = o.id AND f.table_id = $%d)", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if !filter.IncludePaid {
		where = append(where, "o.status <> 'pago'")
	}

	query := selectOrders
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY o.id, m.name ORDER BY o.created_at, o.id"

	return queryOrders(ctx, r.db, query, args...)
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, apply func(*Order) error) (*Order, error) {
	var updated *Order

	err := db.WithTx(ctx, r.db, "update order", func(tx pgx.Tx) error {
		locked, err := LockOrders(ctx, tx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return apperr.NotFound("order", id)
		}

		o := &locked[0]
		if err := apply(o); err != nil {
			return err
		}
		o.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
			UPDATE orders SET status = $1, notes = $2, price = $3, updated_at = $4 WHERE id = $5
		`, string(o.Status), o.Notes, o.Price, o.UpdatedAt, o.ID)
		if err != nil {
			return mapWriteError(err, o, 0)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) (*Order, []TableState, error) {
	var (
		deleted *Order
		changed []TableState
	)

	err := db.WithTx(ctx, r.db, "delete order", func(tx pgx.Tx) error {
		locked, err := LockOrders(ctx, tx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return apperr.NotFound("order", id)
		}
		deleted = &locked[0]

		if err := LockTables(ctx, tx, deleted.TableIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
			return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
		}

		changed, err = RecomputeTables(ctx, tx, deleted.TableIDs)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return deleted, changed, nil
}

// LoadOrders reads the orders among ids that exist, in creation order.
func LoadOrders(ctx context.Context, q Querier, ids []uuid.UUID) ([]Order, error) {
	return queryOrders(ctx, q, selectOrders+`
		WHERE o.id = ANY($1::uuid[])
		GROUP BY o.id, m.name
		ORDER BY o.created_at, o.id
	`, idStrings(ids))
}

// LockOrders takes row locks on the orders among ids that exist and returns
// them. It must run inside a transaction.
func LockOrders(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) ([]Order, error) {
	_, err := tx.Exec(ctx, `SELECT id FROM orders WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, idStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to lock orders: %w", err)
	}
	return LoadOrders(ctx, tx, ids)
}

func queryOrders(ctx context.Context, q Querier, query string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var (
			o         Order
			status    string
			paymentID uuid.NullUUID
			createdBy uuid.NullUUID
			tableIDs  []string
		)
		err := rows.Scan(
			&o.ID,
			&o.MenuItemID,
			&o.MenuItemName,
			&status,
			&o.Notes,
			&o.Price,
			&paymentID,
			&o.PaymentMethod,
			&createdBy,
			&o.CreatedAt,
			&o.UpdatedAt,
			&tableIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}

		o.Status = Status(status)
		if paymentID.Valid {
			o.PaymentID = &paymentID.UUID
		}
		if createdBy.Valid {
			o.CreatedBy = &createdBy.UUID
		}
		o.TableIDs = make([]uuid.UUID, 0, len(tableIDs))
		for _, raw := range tableIDs {
			id, err := uuid.FromString(raw)
			if err != nil {
				return nil, fmt.Errorf("repository: order %s has malformed table id %q: %w", o.ID, raw, err)
			}
			o.TableIDs = append(o.TableIDs, id)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}
	return orders, nil
}

// mapWriteError turns constraint violations into domain errors. Foreign keys
// point at tables and menu items, so a violation means the caller named one
// that does not exist.
func mapWriteError(err error, o *Order, index int) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			log.Warn().Str("constraint", pgErr.ConstraintName).Stringer("order_id", o.ID).Msg("repository: order references a missing row")
			if strings.Contains(pgErr.ConstraintName, "menu_item") {
				return apperr.NotFound("menu item", o.MenuItemID)
			}
			return fmt.Errorf("orders[%d]: %w", index, apperr.NotFound("table", strings.Join(idStrings(o.TableIDs), ",")))
		case pgerrcode.CheckViolation:
			return apperr.Fieldf("orders", "order %s violates %s", o.ID, pgErr.ConstraintName)
		case pgerrcode.UniqueViolation:
			return apperr.Conflict("order %s already exists", o.ID)
		}
	}
	return fmt.Errorf("repository: failed to write order %s: %w", o.ID, err)
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
