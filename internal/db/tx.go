package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn in a transaction. The transaction is committed when fn returns
// nil and rolled back when fn fails or panics; a panic is re-raised after rollback.
func WithTx(ctx context.Context, db TxBeginner, op string, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction for %s: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Str("op", op).Msg("Panic recovered inside transaction, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("op", op).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Debug().Err(err).Str("op", op).Msg("Transaction failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("op", op).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Str("op", op).Msg("Failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction for %s: %w", op, commitErr)
		}
	}()

	return fn(tx)
}
