package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

var _ repository.Snapshotter = (*Store)(nil)

// Snapshot reads accounts and holds in one repeatable-read transaction so the
// two lists agree with each other.
func (s *Store) Snapshot(ctx context.Context) ([]*models.Account, []*models.Hold, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	accounts, err := collect(ctx, tx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`, scanAccount)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot accounts: %w", err)
	}
	holds, err := collect(ctx, tx, `SELECT `+holdColumns+` FROM holds ORDER BY id`, scanHold)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot holds: %w", err)
	}
	return accounts, holds, nil
}

func collect[T any](ctx context.Context, q querier, sql string, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, MapError(rows.Err())
}
