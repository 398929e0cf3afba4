// Package transactions is the lifecycle engine: it validates every event
// against the transition table and the actor's role, then applies the status
// change and its escrow, disclosure and dispute side effects atomically.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/disclosure"
	"github.com/localcredits/backend/internal/dispute"
	"github.com/localcredits/backend/internal/escrow"
	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/lock"
	"github.com/localcredits/backend/internal/metrics"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

// ServiceCatalog resolves a service's price and provider.
type ServiceCatalog interface {
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// Publisher records a committed transition. Publish runs inside the unit of
// work, so an outbox publisher commits or rolls back with the state change.
type Publisher interface {
	Publish(ctx context.Context, tx repository.Tx, ev models.TransitionEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, repository.Tx, models.TransitionEvent) error { return nil }

type Deps struct {
	Store     repository.Store
	Locker    lock.Locker
	Catalog   ServiceCatalog
	Escrow    *escrow.Manager
	Disputes  *dispute.Resolver
	Publisher Publisher
	Metrics   *metrics.Recorder
	Log       *slog.Logger
	Clock     func() time.Time
}

type Engine struct {
	store     repository.Store
	locker    lock.Locker
	catalog   ServiceCatalog
	escrow    *escrow.Manager
	disputes  *dispute.Resolver
	publisher Publisher
	metrics   *metrics.Recorder
	log       *slog.Logger
	now       func() time.Time
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		store:     d.Store,
		locker:    d.Locker,
		catalog:   d.Catalog,
		escrow:    d.Escrow,
		disputes:  d.Disputes,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		log:       d.Log,
		now:       d.Clock,
	}
	if e.locker == nil {
		e.locker = lock.NewLocal()
	}
	if e.publisher == nil {
		e.publisher = nopPublisher{}
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.disputes == nil {
		e.disputes = dispute.NewResolver(e.escrow, e.log)
	}
	return e
}

type CreateRequest struct {
	CustomerID     uuid.UUID
	ServiceID      uuid.UUID
	AgreedPrice    *int64
	EstimatedHours *float64
	Description    string
	CustomerNotes  string
	Schedule       models.Schedule
}

// CreateTransaction opens a pending transaction and reserves its price from
// the customer. Credits always come from the service listing; AgreedPrice
// is the only override.
func (e *Engine) CreateTransaction(ctx context.Context, req CreateRequest) (uuid.UUID, error) {
	start := e.now()
	svc, err := e.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create transaction: %w", err)
	}
	if !svc.IsActive {
		return uuid.Nil, fmt.Errorf("service %s: %w", svc.ID, ErrServiceInactive)
	}
	if svc.ProviderID == req.CustomerID {
		return uuid.Nil, fmt.Errorf("service %s: %w", svc.ID, ErrSelfDealing)
	}
	pricing := models.Pricing{Credits: svc.Price, EstimatedHours: req.EstimatedHours, AgreedPrice: req.AgreedPrice}
	if pricing.Credits <= 0 || (pricing.AgreedPrice != nil && *pricing.AgreedPrice <= 0) {
		return uuid.Nil, fmt.Errorf("create transaction: %w", ErrInvalidPrice)
	}
	if h := pricing.EstimatedHours; h != nil && *h <= 0 {
		return uuid.Nil, fmt.Errorf("create transaction: estimated hours %v: %w", *h, ErrInvalidPrice)
	}

	txn := &models.Transaction{
		ID:            uuid.New(),
		CustomerID:    req.CustomerID,
		ProviderID:    svc.ProviderID,
		ServiceID:     svc.ID,
		Pricing:       pricing,
		Description:   req.Description,
		CustomerNotes: req.CustomerNotes,
		Schedule:      req.Schedule,
		Status:        models.StatusPending,
		Timeline:      models.Timeline{Requested: start},
		Version:       1,
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := e.escrow.Hold(ctx, tx, txn); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		return e.publisher.Publish(ctx, tx, models.TransitionEvent{
			TransactionID: txn.ID,
			Event:         models.EventCreate,
			To:            models.StatusPending,
			ActorID:       req.CustomerID,
			OccurredAt:    start,
		})
	})
	e.metrics.Transition(ctx, string(models.EventCreate), "", string(models.StatusPending), e.now().Sub(start), err)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create transaction: %w", err)
	}

	e.log.InfoContext(ctx, "transaction created",
		"transaction_id", txn.ID,
		"customer_id", txn.CustomerID,
		"provider_id", txn.ProviderID,
		"service_id", txn.ServiceID,
		"price", txn.Pricing.Price(),
	)
	return txn.ID, nil
}

func (e *Engine) AcceptTransaction(ctx context.Context, id, providerID uuid.UUID) (models.Status, error) {
	return e.apply(ctx, id, providerID, models.EventAccept, "", func(ctx context.Context, tx repository.Tx, txn *models.Transaction, at time.Time) error {
		disclosure.Reveal(txn, at)
		return txn.Stamp(models.StampAccepted, at)
	})
}

func (e *Engine) RejectTransaction(ctx context.Context, id, providerID uuid.UUID, reason string) (models.Status, error) {
	return e.apply(ctx, id, providerID, models.EventReject, reason, func(ctx context.Context, tx repository.Tx, txn *models.Transaction, _ time.Time) error {
		return e.escrow.Refund(ctx, tx, txn)
	})
}

func (e *Engine) StartWork(ctx context.Context, id, providerID uuid.UUID) (models.Status, error) {
	return e.apply(ctx, id, providerID, models.EventStart, "", func(_ context.Context, _ repository.Tx, txn *models.Transaction, at time.Time) error {
		return txn.Stamp(models.StampStarted, at)
	})
}

func (e *Engine) CompleteWork(ctx context.Context, id, providerID uuid.UUID) (models.Status, error) {
	return e.apply(ctx, id, providerID, models.EventComplete, "", func(_ context.Context, _ repository.Tx, txn *models.Transaction, at time.Time) error {
		return txn.Stamp(models.StampCompleted, at)
	})
}

func (e *Engine) ConfirmPayment(ctx context.Context, id, customerID uuid.UUID) (models.Status, error) {
	return e.apply(ctx, id, customerID, models.EventConfirmPayment, "", func(ctx context.Context, tx repository.Tx, txn *models.Transaction, at time.Time) error {
		if err := e.escrow.Release(ctx, tx, txn, at); err != nil {
			return err
		}
		return txn.Stamp(models.StampPaid, at)
	})
}

func (e *Engine) CancelTransaction(ctx context.Context, id, actorID uuid.UUID, reason string) (models.Status, error) {
	return e.apply(ctx, id, actorID, models.EventCancel, reason, func(ctx context.Context, tx repository.Tx, txn *models.Transaction, at time.Time) error {
		if err := e.escrow.Refund(ctx, tx, txn); err != nil {
			return err
		}
		return txn.SetCancellation(models.Cancellation{
			CancelledBy:  actorID,
			Reason:       reason,
			RefundIssued: true,
			Timestamp:    at,
		})
	})
}

func (e *Engine) RaiseDispute(ctx context.Context, id, actorID uuid.UUID, reason string) (models.Status, error) {
	return e.apply(ctx, id, actorID, models.EventRaiseDispute, reason, func(_ context.Context, _ repository.Tx, txn *models.Transaction, at time.Time) error {
		return txn.OpenDispute(models.Dispute{RaisedBy: actorID, Reason: reason, Timestamp: at})
	})
}

// ResolveDispute applies an admin ruling. splitFraction is the provider's
// share and is only read for a split.
func (e *Engine) ResolveDispute(ctx context.Context, id, adminID uuid.UUID, resolution models.Resolution, splitFraction *float64) (models.Status, error) {
	d := dispute.Decision{Resolution: resolution, SplitFraction: splitFraction}
	return e.apply(ctx, id, adminID, models.EventResolve, "", func(ctx context.Context, tx repository.Tx, txn *models.Transaction, at time.Time) error {
		return e.disputes.Resolve(ctx, tx, txn, adminID, d, at)
	})
}

type mutation func(ctx context.Context, tx repository.Tx, txn *models.Transaction, at time.Time) error

// apply runs one event under the transaction's lock and inside one unit of
// work: legality, then actor, then side effects, then the settled-hold check
// for terminal states.
func (e *Engine) apply(ctx context.Context, id, actorID uuid.UUID, event models.Event, reason string, mutate mutation) (models.Status, error) {
	start := e.now()
	var from, to models.Status

	err := e.locker.WithLock(ctx, lock.TransactionKey(id.String()), func(ctx context.Context) error {
		return e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			txn, err := tx.LockTransaction(ctx, id)
			if err != nil {
				return err
			}
			from = txn.Status
			refuse := func(err error) error {
				return &TransitionError{TransactionID: id, From: from, Event: event, Actor: actorID, Err: err}
			}

			rule, err := Lookup(txn.Status, event)
			if err != nil {
				if event == models.EventResolve {
					err = fmt.Errorf("%w: %w", dispute.ErrNotDisputed, err)
				}
				return refuse(err)
			}
			if err := e.authorize(ctx, rule, txn, actorID); err != nil {
				return refuse(err)
			}

			at := e.now()
			if err := mutate(ctx, tx, txn, at); err != nil {
				return err
			}
			txn.Status = rule.To
			if err := e.escrow.AssertSettled(ctx, tx, txn); err != nil {
				return err
			}
			txn.Version++
			if err := tx.UpdateTransaction(ctx, txn); err != nil {
				return err
			}
			to = txn.Status
			return e.publisher.Publish(ctx, tx, models.TransitionEvent{
				TransactionID: id,
				Event:         event,
				From:          from,
				To:            to,
				ActorID:       actorID,
				Reason:        reason,
				OccurredAt:    at,
			})
		})
	})
	e.metrics.Transition(ctx, string(event), string(from), string(to), e.now().Sub(start), err)
	if err != nil {
		e.logRefusal(ctx, id, actorID, event, err)
		return from, err
	}

	e.log.InfoContext(ctx, "transaction transitioned",
		"transaction_id", id,
		"event", event,
		"from", from,
		"to", to,
		"actor_id", actorID,
	)
	return to, nil
}

func (e *Engine) authorize(ctx context.Context, rule Rule, txn *models.Transaction, actorID uuid.UUID) error {
	if rule.Actor != PartyAdmin {
		if rule.permits(txn, actorID) {
			return nil
		}
		return fmt.Errorf("%w: %s requires the %s", ErrUnauthorized, rule.Event, rule.Actor)
	}
	acc, err := e.store.GetAccount(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: unknown admin %s", ErrUnauthorized, actorID)
		}
		return err
	}
	if !acc.IsAdmin() {
		return fmt.Errorf("%w: %s requires an admin", ErrUnauthorized, rule.Event)
	}
	if txn.IsParty(actorID) {
		return fmt.Errorf("%w: admin is a party to the transaction", ErrUnauthorized)
	}
	return nil
}

// logRefusal logs expected refusals at info and everything else at error.
func (e *Engine) logRefusal(ctx context.Context, id, actorID uuid.UUID, event models.Event, err error) {
	attrs := []any{"transaction_id", id, "event", event, "actor_id", actorID, "error", err}
	var te *TransitionError
	switch {
	case errors.As(err, &te), errors.Is(err, repository.ErrNotFound),
		errors.Is(err, dispute.ErrInvalidResolution), errors.Is(err, ledger.ErrInvalidFraction):
		e.log.InfoContext(ctx, "transition refused", attrs...)
	default:
		e.log.ErrorContext(ctx, "transition failed", attrs...)
	}
}
