package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

var _ order.Store = (*Store)(nil)

// Store implements order.Store backed by PostgreSQL. Every InTx call runs
// in its own READ COMMITTED transaction; the check-then-act sequences take
// row locks.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx begins a transaction, runs fn and commits when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError(err, "begin transaction")
	}
	// No-op after a successful commit. The rollback must run even when ctx
	// has expired.
	defer func() { _ = pgTx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return wrapError(err, "commit transaction")
	}
	return nil
}

// tx implements order.Tx on a pgx transaction.
type tx struct {
	tx pgx.Tx
}

var _ order.Tx = (*tx)(nil)
