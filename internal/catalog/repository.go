package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

type MenuReader interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (*MenuItem, error)
}

type TableReader interface {
	GetTable(ctx context.Context, id uuid.UUID) (*Table, error)
	ListTables(ctx context.Context, ids []uuid.UUID) ([]Table, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Repository implements every reader over one sqlx handle.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetMenuItem(ctx context.Context, id uuid.UUID) (*MenuItem, error) {
	var item MenuItem
	err := r.db.GetContext(ctx, &item, `SELECT id, name, price, available FROM menu_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("menu item", id)
		}
		return nil, fmt.Errorf("repository: failed to select menu item %s: %w", id, err)
	}
	return &item, nil
}

func (r *Repository) GetTable(ctx context.Context, id uuid.UUID) (*Table, error) {
	var table Table
	err := r.db.GetContext(ctx, &table, `SELECT id, layout_id, table_number, status FROM tables WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("table", id)
		}
		return nil, fmt.Errorf("repository: failed to select table %s: %w", id, err)
	}
	return &table, nil
}

// ListTables returns the tables among ids that exist, ordered by layout and number.
func (r *Repository) ListTables(ctx context.Context, ids []uuid.UUID) ([]Table, error) {
	if len(ids) == 0 {
		return []Table{}, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	tables := make([]Table, 0, len(ids))
	err := r.db.SelectContext(ctx, &tables, `
		SELECT id, layout_id, table_number, status
		FROM tables
		WHERE id = ANY($1::uuid[])
		ORDER BY layout_id, table_number
	`, pq.Array(strIDs))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select tables: %w", err)
	}
	return tables, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, name, email, password_hash, roles, created_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, fmt.Errorf("repository: failed to select user %s: %w", id, err)
	}
	return &user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, name, email, password_hash, roles, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user", email)
		}
		return nil, fmt.Errorf("repository: failed to select user by email: %w", err)
	}
	return &user, nil
}
