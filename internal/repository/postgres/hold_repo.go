package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localcredits/backend/internal/models"
)

const holdColumns = `id, transaction_id, account_id, amount, state, released_to, released_amount, refunded_amount, created_at, resolved_at`

func scanHold(row pgx.Row) (*models.Hold, error) {
	var h models.Hold
	var state string
	err := row.Scan(&h.ID, &h.TransactionID, &h.AccountID, &h.Amount, &state, &h.ReleasedTo, &h.ReleasedAmount, &h.RefundedAmount, &h.CreatedAt, &h.ResolvedAt)
	if err != nil {
		return nil, err
	}
	h.State = models.HoldState(state)
	return &h, nil
}

func (s *Store) GetHold(ctx context.Context, id uuid.UUID) (*models.Hold, error) {
	h, err := scanHold(s.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get hold %s: %w", id, MapError(err))
	}
	return h, nil
}

func (t *pgTx) InsertHold(ctx context.Context, h *models.Hold) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO holds (id, transaction_id, account_id, amount, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, h.ID, h.TransactionID, h.AccountID, h.Amount, string(h.State)).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert hold: %w", MapError(err))
	}
	return nil
}

func (t *pgTx) LockHold(ctx context.Context, id uuid.UUID) (*models.Hold, error) {
	h, err := scanHold(t.tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR NO KEY UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock hold %s: %w", id, MapError(err))
	}
	return h, nil
}

func (t *pgTx) UpdateHold(ctx context.Context, h *models.Hold) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE holds
		SET state = $2, released_to = $3, released_amount = $4, refunded_amount = $5, resolved_at = $6
		WHERE id = $1
	`, h.ID, string(h.State), h.ReleasedTo, h.ReleasedAmount, h.RefundedAmount, h.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update hold %s: %w", h.ID, MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update hold %s: %w", h.ID, MapError(pgx.ErrNoRows))
	}
	return nil
}
