package order

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

// LockTables takes row locks on the given tables in id order. Every
// transaction that changes which unpaid orders reference a table calls it
// before that write, so RecomputeTables always sees the other writers'
// committed rows.
func LockTables(ctx context.Context, tx pgx.Tx, tableIDs []uuid.UUID) error {
	if len(tableIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `SELECT id FROM tables WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, idStrings(tableIDs))
	if err != nil {
		return fmt.Errorf("repository: failed to lock tables: %w", err)
	}
	return nil
}

// RecomputeTables restores the occupancy rule for the given tables: a table is
// occupied exactly while at least one unpaid order references it. Only tables
// whose status actually changed are returned.
func RecomputeTables(ctx context.Context, tx pgx.Tx, tableIDs []uuid.UUID) ([]TableState, error) {
	if len(tableIDs) == 0 {
		return []TableState{}, nil
	}

	rows, err := tx.Query(ctx, `
		WITH desired AS (
			SELECT t.id,
				CASE WHEN EXISTS (
					SELECT 1
					FROM order_tables ot
					JOIN orders o ON o.id = ot.order_id
					WHERE ot.table_id = t.id AND o.status <> 'pago'
				) THEN 'occupied' ELSE 'free' END AS status
			FROM tables t
			WHERE t.id = ANY($1::uuid[])
		)
		UPDATE tables t
		SET status = d.status, updated_at = now()
		FROM desired d
		WHERE t.id = d.id AND t.status <> d.status
		RETURNING t.id, t.layout_id, t.table_number, t.status
	`, idStrings(tableIDs))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to recompute table status: %w", err)
	}
	defer rows.Close()

	changed := make([]TableState, 0)
	for rows.Next() {
		var (
			ts     TableState
			status string
		)
		if err := rows.Scan(&ts.ID, &ts.LayoutID, &ts.TableNumber, &status); err != nil {
			return nil, fmt.Errorf("repository: failed to scan table status: %w", err)
		}
		ts.Status = catalog.TableStatus(status)
		changed = append(changed, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating table status: %w", err)
	}
	return changed, nil
}

// TableEvents builds one table:updated per changed table, addressed to the
// tables room and the table's own and layout's rooms.
func TableEvents(changed []TableState) []events.Event {
	evs := make([]events.Event, 0, len(changed))
	for _, ts := range changed {
		evs = append(evs, events.New(events.TableUpdated, ts,
			events.RoomTables, events.TableRoom(ts.ID), events.LayoutRoom(ts.LayoutID)))
	}
	return evs
}

// Rooms addresses an order event: the orders room plus each of its table rooms.
func Rooms(o *Order) []string {
	return append([]string{events.RoomOrders}, events.TableRooms(o.TableIDs)...)
}
