// Package postgres implements repository.Store on PostgreSQL. A unit of work
// is one database transaction; Lock* methods use SELECT ... FOR NO KEY UPDATE.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localcredits/backend/internal/repository"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", MapError(err))
	}
	return nil
}

// pgTx is the repository.Tx for one open database transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ repository.Tx = (*pgTx)(nil)

// PgxTx exposes the underlying transaction so collaborators (the river
// outbox) can enqueue work that commits together with the state change.
func (t *pgTx) PgxTx() pgx.Tx { return t.tx }

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
