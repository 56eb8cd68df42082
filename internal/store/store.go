package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// Store owns all persistent records: rides, assignments, trips, payments and
// idempotency keys. Every multi-row state transition runs in a single
// transaction, and reads that feed transition decisions lock the row they
// read (SELECT ... FOR UPDATE).
type Store struct {
	db    *pgxpool.Pool
	keyed singleflight.Group
}

// New creates a store on top of a pgx connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
