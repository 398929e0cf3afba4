// Package escrow binds ledger operations to transaction transitions: hold on
// create, release on payment, refund on reject or cancel, and the admin's
// choice on dispute resolution.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/metrics"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

var (
	// ErrHoldFrozen is returned for release or refund while the transaction is disputed.
	ErrHoldFrozen = errors.New("hold is frozen by an open dispute")
	// ErrUnsettledHold means a transaction is about to reach a terminal state
	// with its hold still open.
	ErrUnsettledHold = errors.New("terminal transaction has an unresolved hold")
)

type Manager struct {
	ledger  *ledger.Ledger
	log     *slog.Logger
	metrics *metrics.Recorder
}

func NewManager(l *ledger.Ledger, log *slog.Logger, rec *metrics.Recorder) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Manager{ledger: l, log: log, metrics: rec}
}

// Hold reserves the effective price from the customer and records the hold
// on txn.
func (m *Manager) Hold(ctx context.Context, tx repository.Tx, txn *models.Transaction) error {
	if txn.HoldID != uuid.Nil {
		return fmt.Errorf("hold for transaction %s: %w", txn.ID, models.ErrAlreadySet)
	}
	holdID, err := m.ledger.Reserve(ctx, tx, txn.CustomerID, txn.ID, txn.Pricing.Price())
	if err != nil {
		return err
	}
	txn.HoldID = holdID
	return nil
}

// Release pays the hold to the provider and records the payment.
func (m *Manager) Release(ctx context.Context, tx repository.Tx, txn *models.Transaction, paidAt time.Time) error {
	if txn.Status == models.StatusDisputed {
		return fmt.Errorf("release %s: %w", txn.ID, ErrHoldFrozen)
	}
	if err := m.ledger.Release(ctx, tx, txn.HoldID, txn.ProviderID); err != nil {
		return err
	}
	return txn.SetPayment(models.Payment{Amount: txn.Pricing.Price(), PaidAt: paidAt, EscrowReleased: true})
}

// Refund returns the open hold to the customer. A hold that is already
// resolved is a ledger inconsistency and fails with
// ledger.ErrHoldAlreadyResolved.
func (m *Manager) Refund(ctx context.Context, tx repository.Tx, txn *models.Transaction) error {
	if txn.Status == models.StatusDisputed {
		return fmt.Errorf("refund %s: %w", txn.ID, ErrHoldFrozen)
	}
	return m.ledger.Refund(ctx, tx, txn.HoldID)
}

// Resolve applies an admin decision to a disputed transaction's hold and
// returns the credits paid to the provider.
func (m *Manager) Resolve(ctx context.Context, tx repository.Tx, txn *models.Transaction, resolution models.Resolution, fraction float64) (int64, error) {
	hold, err := tx.LockHold(ctx, txn.HoldID)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", txn.ID, err)
	}
	switch resolution {
	case models.ResolutionFavorProvider:
		return hold.Amount, m.ledger.Release(ctx, tx, hold.ID, txn.ProviderID)
	case models.ResolutionFavorCustomer:
		return 0, m.ledger.Refund(ctx, tx, hold.ID)
	case models.ResolutionSplit:
		if err := m.ledger.WriteOff(ctx, tx, hold.ID, txn.ProviderID, fraction); err != nil {
			return 0, err
		}
		return ledger.SplitAmount(hold.Amount, fraction), nil
	}
	return 0, fmt.Errorf("resolve %s: unknown resolution %q", txn.ID, resolution)
}

// AssertSettled fails when txn is terminal but its hold is still open.
func (m *Manager) AssertSettled(ctx context.Context, tx repository.Tx, txn *models.Transaction) error {
	if !txn.Status.Terminal() {
		return nil
	}
	hold, err := tx.LockHold(ctx, txn.HoldID)
	if err != nil {
		return fmt.Errorf("assert settled %s: %w", txn.ID, err)
	}
	if hold.Resolved() {
		return nil
	}
	err = fmt.Errorf("%w: transaction %s status %s hold %s", ErrUnsettledHold, txn.ID, txn.Status, hold.ID)
	m.log.ErrorContext(ctx, "escrow invariant breach",
		"invariant_breach", true,
		"transaction_id", txn.ID,
		"hold_id", hold.ID,
		"status", txn.Status,
		"error", err,
	)
	m.metrics.InvariantBreach(ctx, "unsettled_hold")
	return err
}
