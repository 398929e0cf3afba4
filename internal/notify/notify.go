// Package notify delivers committed transition events. Events are enqueued
// as river jobs in the same database transaction as the state change and
// fanned out to Handlers by the worker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

// ErrNoDatabaseTx is returned when the unit of work is not backed by Postgres.
var ErrNoDatabaseTx = errors.New("outbox requires a database transaction")

type TransitionArgs struct {
	Event models.TransitionEvent `json:"event"`
}

func (TransitionArgs) Kind() string { return "transaction_transition" }

// InsertTxFunc enqueues a job within the given transaction. Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args TransitionArgs) error

// pgxBacked is implemented by repository transactions that wrap a pgx.Tx.
type pgxBacked interface {
	PgxTx() pgx.Tx
}

// RiverPublisher writes transition events to the river job table.
type RiverPublisher struct {
	insert InsertTxFunc
}

func NewRiverPublisher(insert InsertTxFunc) *RiverPublisher {
	return &RiverPublisher{insert: insert}
}

func (p *RiverPublisher) Publish(ctx context.Context, tx repository.Tx, ev models.TransitionEvent) error {
	backed, ok := tx.(pgxBacked)
	if !ok {
		return ErrNoDatabaseTx
	}
	if err := p.insert(ctx, backed.PgxTx(), TransitionArgs{Event: ev}); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", ev.Event, ev.TransactionID, err)
	}
	return nil
}

// Handler reacts to one committed transition.
type Handler interface {
	Handle(ctx context.Context, ev models.TransitionEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev models.TransitionEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev models.TransitionEvent) error { return f(ctx, ev) }

// LogHandler writes every event to the log.
func LogHandler(log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return HandlerFunc(func(ctx context.Context, ev models.TransitionEvent) error {
		log.InfoContext(ctx, "transition event",
			"transaction_id", ev.TransactionID,
			"event", ev.Event,
			"from", ev.From,
			"to", ev.To,
			"actor_id", ev.ActorID,
		)
		return nil
	})
}

type TransitionWorker struct {
	river.WorkerDefaults[TransitionArgs]
	handlers []Handler
	log      *slog.Logger
}

func NewTransitionWorker(log *slog.Logger, handlers ...Handler) *TransitionWorker {
	if log == nil {
		log = slog.Default()
	}
	return &TransitionWorker{handlers: handlers, log: log}
}

// Work runs every handler. A failing handler fails the job so river retries
// it; handlers must therefore tolerate seeing an event twice.
func (w *TransitionWorker) Work(ctx context.Context, job *river.Job[TransitionArgs]) error {
	ev := job.Args.Event
	var errs []error
	for _, h := range w.handlers {
		if err := h.Handle(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		w.log.WarnContext(ctx, "transition handlers failed", "transaction_id", ev.TransactionID, "event", ev.Event, "error", err)
		return fmt.Errorf("deliver %s for %s: %w", ev.Event, ev.TransactionID, err)
	}
	return nil
}
