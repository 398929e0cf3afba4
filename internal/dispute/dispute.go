// Package dispute applies an admin's decision to a disputed transaction.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/escrow"
	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

var (
	ErrNotDisputed       = errors.New("transaction is not disputed")
	ErrInvalidResolution = errors.New("invalid resolution")
)

// Decision is the admin's ruling. SplitFraction is the provider's share and
// is only read for a split.
type Decision struct {
	Resolution    models.Resolution
	SplitFraction *float64
}

// Validate checks the decision on its own, before any state is touched.
func (d Decision) Validate() error {
	if !d.Resolution.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidResolution, d.Resolution)
	}
	if d.Resolution != models.ResolutionSplit {
		return nil
	}
	if d.SplitFraction == nil {
		return fmt.Errorf("%w: split requires a fraction", ledger.ErrInvalidFraction)
	}
	if f := *d.SplitFraction; f < 0 || f > 1 || math.IsNaN(f) {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidFraction, f)
	}
	return nil
}

type Resolver struct {
	escrow *escrow.Manager
	log    *slog.Logger
}

func NewResolver(m *escrow.Manager, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{escrow: m, log: log}
}

// Resolve settles the hold per d, records the ruling on txn and moves it to
// disputed-resolved. It is the only way out of disputed.
func (r *Resolver) Resolve(ctx context.Context, tx repository.Tx, txn *models.Transaction, adminID uuid.UUID, d Decision, at time.Time) error {
	if txn.Status != models.StatusDisputed || txn.Dispute == nil {
		return fmt.Errorf("%w: %s is %s", ErrNotDisputed, txn.ID, txn.Status)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if txn.Dispute.Resolution != "" {
		return fmt.Errorf("dispute resolution: %w", models.ErrAlreadySet)
	}

	var fraction float64
	if d.Resolution == models.ResolutionSplit {
		fraction = *d.SplitFraction
	}
	paid, err := r.escrow.Resolve(ctx, tx, txn, d.Resolution, fraction)
	if err != nil {
		return err
	}

	txn.Dispute.Resolution = d.Resolution
	txn.Dispute.ResolvedBy = &adminID
	txn.Dispute.ResolvedAt = &at
	if d.Resolution == models.ResolutionSplit {
		txn.Dispute.SplitFraction = &fraction
	}
	if paid > 0 {
		if err := txn.SetPayment(models.Payment{Amount: paid, PaidAt: at, EscrowReleased: true}); err != nil {
			return err
		}
	}
	txn.Status = models.StatusDisputedResolved

	r.log.InfoContext(ctx, "dispute resolved",
		"transaction_id", txn.ID,
		"admin_id", adminID,
		"resolution", d.Resolution,
		"provider_paid", paid,
	)
	return nil
}
