package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, transaction_id, hold_id, entry_type, amount, balance_after, escrow_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.AccountID, e.TransactionID, e.HoldID, e.EntryType, e.Amount, e.BalanceAfter, e.EscrowAfter).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", MapError(err))
	}
	return nil
}

// ListLedgerEntries returns an account's entries, newest first.
func (s *Store) ListLedgerEntries(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, transaction_id, hold_id, entry_type, amount, balance_after, escrow_after, created_at
		FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", MapError(err))
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.HoldID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.EscrowAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
