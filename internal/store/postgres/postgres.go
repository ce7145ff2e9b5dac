// Package postgres implements the directory store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// builder is the shared squirrel builder with Postgres placeholders.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier is the subset of pgx operations the store needs. It is satisfied
// by *pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB adds transaction control and liveness checks on top of Querier.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store is the Postgres-backed directory store. A Store created by New is
// bound to the pool; InTx derives tx-scoped Stores from it.
type Store struct {
	q  Querier
	db DB
}

// New creates a store bound to the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, db: pool}
}

// NewWithDB creates a store from any DB implementation. Used by tests to
// substitute pgxmock.
func NewWithDB(db DB) *Store {
	return &Store{q: db, db: db}
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// InTx runs fn in a serializable transaction. Serializable isolation is what
// keeps two concurrent course batches for the same site from both observing
// free quota; the transaction boundary is the enforcement point, not an
// application lock. A tx-scoped store joins the ambient transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			_ = rbErr
		}
	}()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
