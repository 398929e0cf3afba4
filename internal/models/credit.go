package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry types.
const (
	CreditEntryEscrowHold    = "escrow_hold"
	CreditEntryEscrowRelease = "escrow_release"
	CreditEntryEarning       = "earning"
	CreditEntryRefund        = "refund"
	CreditEntryWriteOff      = "write_off"
)

// HoldState tracks the single resolution a hold may ever receive.
type HoldState string

const (
	HoldHeld       HoldState = "held"
	HoldReleased   HoldState = "released"
	HoldRefunded   HoldState = "refunded"
	HoldWrittenOff HoldState = "written_off"
)

// Hold is credits reserved from an account against one transaction.
type Hold struct {
	ID             uuid.UUID  `json:"id"`
	TransactionID  uuid.UUID  `json:"transaction_id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Amount         int64      `json:"amount"`
	State          HoldState  `json:"state"`
	ReleasedTo     *uuid.UUID `json:"released_to,omitempty"`
	ReleasedAmount int64      `json:"released_amount"`
	RefundedAmount int64      `json:"refunded_amount"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func (h *Hold) Resolved() bool { return h.State != HoldHeld }

type LedgerEntry struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	HoldID        *uuid.UUID `json:"hold_id,omitempty"`
	EntryType     string     `json:"entry_type"`
	Amount        int64      `json:"amount"`
	BalanceAfter  int64      `json:"balance_after"`
	EscrowAfter   int64      `json:"escrow_after"`
	CreatedAt     time.Time  `json:"created_at"`
}
