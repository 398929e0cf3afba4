package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadySet is returned when a write-once field is written twice.
var ErrAlreadySet = errors.New("already set")

// Timeline stamps.
const (
	StampAccepted  = "accepted"
	StampStarted   = "started"
	StampCompleted = "completed"
	StampPaid      = "paid"
)

// Stamp sets one timeline field. A stamp is written at most once and is
// never earlier than the stamps before it; an earlier clock reading is
// raised to the latest existing stamp.
func (t *Transaction) Stamp(name string, at time.Time) error {
	var field **time.Time
	switch name {
	case StampAccepted:
		field = &t.Timeline.Accepted
	case StampStarted:
		field = &t.Timeline.Started
	case StampCompleted:
		field = &t.Timeline.Completed
	case StampPaid:
		field = &t.Timeline.Paid
	default:
		return fmt.Errorf("unknown timeline stamp %q", name)
	}
	if *field != nil {
		return fmt.Errorf("timeline %s: %w", name, ErrAlreadySet)
	}
	if latest := t.Timeline.Latest(); at.Before(latest) {
		at = latest
	}
	*field = &at
	return nil
}

func (t *Transaction) SetPayment(p Payment) error {
	if t.Payment != nil {
		return fmt.Errorf("payment: %w", ErrAlreadySet)
	}
	t.Payment = &p
	return nil
}

func (t *Transaction) SetCancellation(c Cancellation) error {
	if t.Cancellation != nil {
		return fmt.Errorf("cancellation: %w", ErrAlreadySet)
	}
	t.Cancellation = &c
	return nil
}

// OpenDispute attaches the dispute record. Resolution fields are filled in
// later by ResolveDispute.
func (t *Transaction) OpenDispute(d Dispute) error {
	if t.Dispute != nil {
		return fmt.Errorf("dispute: %w", ErrAlreadySet)
	}
	d.Resolution, d.ResolvedBy, d.ResolvedAt, d.SplitFraction = "", nil, nil, nil
	t.Dispute = &d
	return nil
}
