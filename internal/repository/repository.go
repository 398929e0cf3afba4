// Package repository defines the persistence boundary of the escrow engine.
// Every mutation of an account, hold or transaction happens inside a Tx, so a
// status change and its ledger consequence commit or roll back together.
package repository

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

var (
	// ErrNotFound is returned when a transaction, account, hold or service id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when inserting a record whose key already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidEntity is returned when the store rejects a record as inconsistent.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Store opens repository transactions and serves committed reads.
type Store interface {
	// WithinTx runs fn in one atomic unit. A non-nil error from fn rolls back
	// every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error)
	GetHold(ctx context.Context, id uuid.UUID) (*models.Hold, error)
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Tx is a unit of work. Lock* methods take an exclusive lock on the record for
// the remainder of the unit. Callers lock in the global order
// transaction -> hold -> accounts (ascending id) to stay deadlock free.
type Tx interface {
	LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error

	// LockAccounts locks every id in ascending order and returns them keyed by id.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error

	InsertHold(ctx context.Context, h *models.Hold) error
	LockHold(ctx context.Context, id uuid.UUID) (*models.Hold, error)
	UpdateHold(ctx context.Context, h *models.Hold) error

	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
}

// SortedIDs returns ids deduplicated and in ascending byte order, the global
// account lock order. Byte order matches Postgres uuid ordering.
func SortedIDs(ids ...uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(out)
}

// Snapshotter returns one consistent view of every account and hold, for
// balance audits.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]*models.Account, []*models.Hold, error)
}
