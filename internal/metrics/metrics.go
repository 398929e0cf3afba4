// Package metrics records engine counters through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/localcredits/backend"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Recorder struct {
	transitions       metric.Int64Counter
	transitionLatency metric.Float64Histogram
	ledgerOps         metric.Int64Counter
	creditsMoved      metric.Int64Counter
	invariantBreaches metric.Int64Counter
}

// New builds the instruments on provider, or on the global provider when nil.
func New(provider metric.MeterProvider) (*Recorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	var (
		r   Recorder
		err error
	)

	r.transitions, err = meter.Int64Counter(
		"localcredits.transactions.transitions",
		metric.WithDescription("State machine events applied, by event and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create localcredits.transactions.transitions counter: %w", err)
	}

	r.transitionLatency, err = meter.Float64Histogram(
		"localcredits.transactions.latency",
		metric.WithDescription("Time taken to apply one state machine event"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create localcredits.transactions.latency histogram: %w", err)
	}

	r.ledgerOps, err = meter.Int64Counter(
		"localcredits.ledger.operations",
		metric.WithDescription("Credit ledger operations, by operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create localcredits.ledger.operations counter: %w", err)
	}

	r.creditsMoved, err = meter.Int64Counter(
		"localcredits.ledger.credits",
		metric.WithDescription("Credits moved by successful ledger operations"),
		metric.WithUnit("{credit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create localcredits.ledger.credits counter: %w", err)
	}

	r.invariantBreaches, err = meter.Int64Counter(
		"localcredits.invariant.breaches",
		metric.WithDescription("Internal consistency violations that aborted an operation"),
		metric.WithUnit("{breach}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create localcredits.invariant.breaches counter: %w", err)
	}

	return &r, nil
}

// Nop returns a Recorder that drops everything.
func Nop() *Recorder {
	r, err := New(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return r
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Transition records one applied (or refused) state machine event.
func (r *Recorder) Transition(ctx context.Context, event, from, to string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("outcome", outcome(err)),
	)
	r.transitions.Add(ctx, 1, attrs)
	r.transitionLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("event", event)))
}

// LedgerOp records one ledger operation and, on success, the credits it moved.
func (r *Recorder) LedgerOp(ctx context.Context, op string, amount int64, err error) {
	r.ledgerOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome(err)),
	))
	if err == nil && amount > 0 {
		r.creditsMoved.Add(ctx, amount, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// InvariantBreach counts a consistency violation of the given kind.
func (r *Recorder) InvariantBreach(ctx context.Context, kind string) {
	r.invariantBreaches.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
