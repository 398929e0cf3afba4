// Package ledger keeps per-account balance and escrow bookkeeping. Every
// operation runs inside the caller's repository.Tx, locks the accounts it
// touches in ascending id order and appends credit_ledger entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/localcredits/backend/internal/metrics"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

var (
	// ErrInsufficientBalance is returned when a reserve would overdraw the account.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidFraction     = errors.New("fraction must be within [0,1]")

	// Hold consistency errors. These are engine bugs, never caller mistakes.
	ErrHoldNotFound        = errors.New("hold not found")
	ErrHoldAlreadyResolved = errors.New("hold already resolved")
	ErrEscrowShortfall     = errors.New("escrow does not cover hold")
)

// Operation names used in logs and metrics.
const (
	OpReserve  = "reserve"
	OpRelease  = "release"
	OpRefund   = "refund"
	OpWriteOff = "write_off"
)

type Ledger struct {
	log     *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

func New(log *slog.Logger, rec *metrics.Recorder) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Ledger{log: log, metrics: rec, now: time.Now}
}

// Reserve moves amount from the account's balance into escrow and returns the
// id of the new hold.
func (l *Ledger) Reserve(ctx context.Context, tx repository.Tx, accountID, transactionID uuid.UUID, amount int64) (holdID uuid.UUID, err error) {
	defer func() { l.metrics.LedgerOp(ctx, OpReserve, amount, err) }()

	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("reserve %d: %w", amount, ErrInvalidAmount)
	}
	accs, err := tx.LockAccounts(ctx, accountID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reserve: %w", err)
	}
	acc := accs[accountID]
	if acc.Balance < amount {
		return uuid.Nil, fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientBalance, accountID, acc.Balance, amount)
	}

	acc.Balance -= amount
	acc.Escrow += amount
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return uuid.Nil, fmt.Errorf("reserve: %w", err)
	}

	hold := &models.Hold{
		ID:            uuid.New(),
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		State:         models.HoldHeld,
	}
	if err := tx.InsertHold(ctx, hold); err != nil {
		return uuid.Nil, fmt.Errorf("reserve: %w", err)
	}
	if err := l.entry(ctx, tx, acc, hold, models.CreditEntryEscrowHold, amount); err != nil {
		return uuid.Nil, err
	}

	l.log.InfoContext(ctx, "escrow reserved", "account_id", accountID, "transaction_id", transactionID, "hold_id", hold.ID, "amount", amount)
	return hold.ID, nil
}

// Release pays the whole hold to destinationID.
func (l *Ledger) Release(ctx context.Context, tx repository.Tx, holdID, destinationID uuid.UUID) (err error) {
	var amount int64
	defer func() { l.metrics.LedgerOp(ctx, OpRelease, amount, err) }()

	hold, err := l.lockUnresolved(ctx, tx, holdID, OpRelease)
	if err != nil {
		return err
	}
	amount = hold.Amount
	return l.settle(ctx, tx, hold, destinationID, hold.Amount, models.HoldReleased)
}

// Refund returns the whole hold to its holder.
func (l *Ledger) Refund(ctx context.Context, tx repository.Tx, holdID uuid.UUID) (err error) {
	var amount int64
	defer func() { l.metrics.LedgerOp(ctx, OpRefund, amount, err) }()

	hold, err := l.lockUnresolved(ctx, tx, holdID, OpRefund)
	if err != nil {
		return err
	}
	amount = hold.Amount
	return l.settle(ctx, tx, hold, uuid.Nil, 0, models.HoldRefunded)
}

// WriteOff pays floor(amount*fraction) to toAccountID and refunds the rest
// to the holder.
func (l *Ledger) WriteOff(ctx context.Context, tx repository.Tx, holdID, toAccountID uuid.UUID, fraction float64) (err error) {
	var amount int64
	defer func() { l.metrics.LedgerOp(ctx, OpWriteOff, amount, err) }()

	if fraction < 0 || fraction > 1 || math.IsNaN(fraction) {
		return fmt.Errorf("write off %v: %w", fraction, ErrInvalidFraction)
	}
	hold, err := l.lockUnresolved(ctx, tx, holdID, OpWriteOff)
	if err != nil {
		return err
	}
	amount = hold.Amount
	paid := SplitAmount(hold.Amount, fraction)
	return l.settle(ctx, tx, hold, toAccountID, paid, models.HoldWrittenOff)
}

// SplitAmount is the share of amount paid out at fraction, rounded down to a
// whole credit.
func SplitAmount(amount int64, fraction float64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(fraction)).Floor().IntPart()
}

func (l *Ledger) lockUnresolved(ctx context.Context, tx repository.Tx, holdID uuid.UUID, op string) (*models.Hold, error) {
	hold, err := tx.LockHold(ctx, holdID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, l.breach(ctx, op, holdID, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if hold.Resolved() {
		return nil, l.breach(ctx, op, holdID, fmt.Errorf("%w: %s is %s", ErrHoldAlreadyResolved, holdID, hold.State))
	}
	return hold, nil
}

// settle resolves hold: paid credits go to dest, the remainder back to the
// holder. Both accounts are locked in one ordered call.
func (l *Ledger) settle(ctx context.Context, tx repository.Tx, hold *models.Hold, dest uuid.UUID, paid int64, state models.HoldState) error {
	refund := hold.Amount - paid
	ids := []uuid.UUID{hold.AccountID}
	if paid > 0 {
		ids = append(ids, dest)
	}
	accs, err := tx.LockAccounts(ctx, ids...)
	if err != nil {
		return fmt.Errorf("settle hold %s: %w", hold.ID, err)
	}

	src := accs[hold.AccountID]
	if src.Escrow < hold.Amount {
		return l.breach(ctx, string(state), hold.ID, fmt.Errorf("%w: account %s escrow %d, hold %d", ErrEscrowShortfall, src.ID, src.Escrow, hold.Amount))
	}
	src.Escrow -= hold.Amount
	src.Balance += refund

	dst := src
	if paid > 0 {
		if dest != src.ID {
			dst = accs[dest]
		}
		src.SpentLifetime += paid
		dst.Balance += paid
		dst.EarnedLifetime += paid
	}

	if err := tx.UpdateAccount(ctx, src); err != nil {
		return fmt.Errorf("settle hold %s: %w", hold.ID, err)
	}
	if dst != src {
		if err := tx.UpdateAccount(ctx, dst); err != nil {
			return fmt.Errorf("settle hold %s: %w", hold.ID, err)
		}
	}

	now := l.now()
	hold.State = state
	hold.ReleasedAmount = paid
	hold.RefundedAmount = refund
	hold.ResolvedAt = &now
	if paid > 0 {
		hold.ReleasedTo = &dest
	}
	if err := tx.UpdateHold(ctx, hold); err != nil {
		return fmt.Errorf("settle hold %s: %w", hold.ID, err)
	}

	if paid > 0 {
		outType := models.CreditEntryEscrowRelease
		if state == models.HoldWrittenOff {
			outType = models.CreditEntryWriteOff
		}
		if err := l.entry(ctx, tx, src, hold, outType, paid); err != nil {
			return err
		}
		if err := l.entry(ctx, tx, dst, hold, models.CreditEntryEarning, paid); err != nil {
			return err
		}
	}
	if refund > 0 {
		if err := l.entry(ctx, tx, src, hold, models.CreditEntryRefund, refund); err != nil {
			return err
		}
	}

	l.log.InfoContext(ctx, "escrow settled",
		"hold_id", hold.ID,
		"transaction_id", hold.TransactionID,
		"state", state,
		"paid", paid,
		"refunded", refund,
	)
	return nil
}

func (l *Ledger) entry(ctx context.Context, tx repository.Tx, acc *models.Account, hold *models.Hold, entryType string, amount int64) error {
	txnID, holdID := hold.TransactionID, hold.ID
	err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     acc.ID,
		TransactionID: &txnID,
		HoldID:        &holdID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceAfter:  acc.Balance,
		EscrowAfter:   acc.Escrow,
	})
	if err != nil {
		return fmt.Errorf("ledger entry %s: %w", entryType, err)
	}
	return nil
}

// breach logs and counts a hold consistency violation and hands err back so
// the caller aborts its unit of work.
func (l *Ledger) breach(ctx context.Context, op string, holdID uuid.UUID, err error) error {
	l.log.ErrorContext(ctx, "ledger invariant breach",
		"invariant_breach", true,
		"operation", op,
		"hold_id", holdID,
		"error", err,
	)
	l.metrics.InvariantBreach(ctx, op)
	return err
}
