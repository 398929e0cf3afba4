package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

const accountColumns = `id, email, display_name, phone, location, role, balance, escrow, earned_lifetime, spent_lifetime, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var role string
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Phone, &a.Location, &role, &a.Balance, &a.Escrow, &a.EarnedLifetime, &a.SpentLifetime, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, MapError(err))
	}
	return a, nil
}

// LockAccounts locks the rows in ascending id order; the locks are taken in
// the order the rows are returned. FOR NO KEY UPDATE leaves KEY SHARE free,
// so foreign key checks against a locked account from other units (a new
// transaction's provider_id, cancelled_by, dispute_resolved_by) never wait
// on it and cannot invert the account order.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	sorted := repository.SortedIDs(ids...)
	rows, err := t.tx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE id = ANY($1) ORDER BY id FOR NO KEY UPDATE
	`, sorted)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", MapError(err))
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*models.Account, len(sorted))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("lock accounts: %w", err)
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock accounts: %w", MapError(err))
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
	}
	return out, nil
}

// UpdateAccount writes the credit fields. Call after LockAccounts in the same tx.
func (t *pgTx) UpdateAccount(ctx context.Context, a *models.Account) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = $2, escrow = $3, earned_lifetime = $4, spent_lifetime = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Balance, a.Escrow, a.EarnedLifetime, a.SpentLifetime).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.ID, MapError(err))
	}
	return nil
}
