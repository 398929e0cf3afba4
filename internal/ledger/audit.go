package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

// TotalHoldings is sum(balance) + sum(escrow) over accounts.
func TotalHoldings(accounts []*models.Account) int64 {
	var total int64
	for _, a := range accounts {
		total += a.Holdings()
	}
	return total
}

// Audit checks that every account's escrow equals the sum of its unresolved
// holds and that resolved holds were split without remainder.
func Audit(accounts []*models.Account, holds []*models.Hold) error {
	held := make(map[uuid.UUID]int64)
	var errs []error
	for _, h := range holds {
		if !h.Resolved() {
			held[h.AccountID] += h.Amount
			continue
		}
		if h.ReleasedAmount+h.RefundedAmount != h.Amount {
			errs = append(errs, fmt.Errorf("hold %s: released %d + refunded %d != %d", h.ID, h.ReleasedAmount, h.RefundedAmount, h.Amount))
		}
	}
	for _, a := range accounts {
		if a.Balance < 0 || a.Escrow < 0 {
			errs = append(errs, fmt.Errorf("account %s: negative balance %d or escrow %d", a.ID, a.Balance, a.Escrow))
		}
		if a.Escrow != held[a.ID] {
			errs = append(errs, fmt.Errorf("account %s: escrow %d, open holds %d", a.ID, a.Escrow, held[a.ID]))
		}
	}
	return errors.Join(errs...)
}
