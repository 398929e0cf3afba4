package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAccepted         Status = "accepted"
	StatusRejected         Status = "rejected"
	StatusInProgress       Status = "in-progress"
	StatusCompleted        Status = "completed"
	StatusPaid             Status = "paid"
	StatusCancelled        Status = "cancelled"
	StatusDisputed         Status = "disputed"
	StatusDisputedResolved Status = "disputed-resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted,
	StatusPaid, StatusCancelled, StatusDisputed, StatusDisputedResolved,
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusCancelled, StatusDisputedResolved:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Event is an actor-issued request to move a transaction.
type Event string

const (
	EventAccept         Event = "accept"
	EventReject         Event = "reject"
	EventCancel         Event = "cancel"
	EventStart          Event = "start"
	EventComplete       Event = "complete"
	EventConfirmPayment Event = "confirm_payment"
	EventRaiseDispute   Event = "raise_dispute"
	EventResolve        Event = "resolve"
	// EventCreate only appears in published transition events.
	EventCreate Event = "create"
)

// Events lists every event that can be applied to an existing transaction.
var Events = []Event{
	EventAccept, EventReject, EventCancel, EventStart, EventComplete,
	EventConfirmPayment, EventRaiseDispute, EventResolve,
}

// Resolution is the admin decision closing a dispute.
type Resolution string

const (
	ResolutionFavorProvider Resolution = "favor-provider"
	ResolutionFavorCustomer Resolution = "favor-customer"
	ResolutionSplit         Resolution = "split"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionFavorProvider, ResolutionFavorCustomer, ResolutionSplit:
		return true
	}
	return false
}

// Pricing copies the service's listed price at creation. Only AgreedPrice
// can differ from the listing.
type Pricing struct {
	Credits        int64    `json:"credits"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	AgreedPrice    *int64   `json:"agreed_price,omitempty"`
}

// Price is what the customer pays: the agreed price when negotiated,
// otherwise the listed credits.
func (p Pricing) Price() int64 {
	if p.AgreedPrice != nil {
		return *p.AgreedPrice
	}
	return p.Credits
}

type Timeline struct {
	Requested time.Time  `json:"requested_at"`
	Accepted  *time.Time `json:"accepted_at,omitempty"`
	Started   *time.Time `json:"started_at,omitempty"`
	Completed *time.Time `json:"completed_at,omitempty"`
	Paid      *time.Time `json:"paid_at,omitempty"`
}

// Latest returns the most recent stamp set on the timeline.
func (t Timeline) Latest() time.Time {
	latest := t.Requested
	for _, ts := range []*time.Time{t.Accepted, t.Started, t.Completed, t.Paid} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest
}

// Schedule is what the customer proposed for the visit. It is informational
// and never checked by the lifecycle.
type Schedule struct {
	Date              *time.Time `json:"scheduled_date,omitempty"`
	EstimatedDuration string     `json:"estimated_duration,omitempty"`
	Address           string     `json:"service_address,omitempty"`
}

type ContactDisclosure struct {
	ProviderShared bool       `json:"provider_contact_shared"`
	CustomerShared bool       `json:"customer_contact_shared"`
	SharedAt       *time.Time `json:"shared_at,omitempty"`
}

func (c ContactDisclosure) Revealed() bool { return c.ProviderShared && c.CustomerShared }

type Payment struct {
	Amount         int64     `json:"amount"`
	PaidAt         time.Time `json:"paid_at"`
	EscrowReleased bool      `json:"escrow_released"`
}

type Cancellation struct {
	CancelledBy  uuid.UUID `json:"cancelled_by"`
	Reason       string    `json:"reason"`
	RefundIssued bool      `json:"refund_issued"`
	Timestamp    time.Time `json:"timestamp"`
}

type Dispute struct {
	RaisedBy      uuid.UUID  `json:"raised_by"`
	Reason        string     `json:"reason"`
	Resolution    Resolution `json:"resolution,omitempty"`
	ResolvedBy    *uuid.UUID `json:"resolved_by,omitempty"`
	SplitFraction *float64   `json:"split_fraction,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// Transaction is one customer/provider engagement. Parties and service are
// held by identity only.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	ProviderID    uuid.UUID         `json:"provider_id"`
	ServiceID     uuid.UUID         `json:"service_id"`
	Pricing       Pricing           `json:"pricing"`
	Description   string            `json:"description"`
	CustomerNotes string            `json:"customer_notes,omitempty"`
	Schedule      Schedule          `json:"schedule"`
	Status        Status            `json:"status"`
	Timeline      Timeline          `json:"timeline"`
	Contact       ContactDisclosure `json:"contact_disclosure"`
	HoldID        uuid.UUID         `json:"hold_id"`
	Payment       *Payment          `json:"payment,omitempty"`
	Cancellation  *Cancellation     `json:"cancellation,omitempty"`
	Dispute       *Dispute          `json:"dispute,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsParty reports whether id is the customer or the provider.
func (t *Transaction) IsParty(id uuid.UUID) bool {
	return id == t.CustomerID || id == t.ProviderID
}

// Counterparty returns the other side of the engagement for a party.
func (t *Transaction) Counterparty(id uuid.UUID) (uuid.UUID, bool) {
	switch id {
	case t.CustomerID:
		return t.ProviderID, true
	case t.ProviderID:
		return t.CustomerID, true
	}
	return uuid.Nil, false
}

// Clone returns a deep copy so callers never share sub-records.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Pricing.AgreedPrice = clonePtr(t.Pricing.AgreedPrice)
	cp.Pricing.EstimatedHours = clonePtr(t.Pricing.EstimatedHours)
	cp.Schedule.Date = clonePtr(t.Schedule.Date)
	cp.Timeline.Accepted = clonePtr(t.Timeline.Accepted)
	cp.Timeline.Started = clonePtr(t.Timeline.Started)
	cp.Timeline.Completed = clonePtr(t.Timeline.Completed)
	cp.Timeline.Paid = clonePtr(t.Timeline.Paid)
	cp.Contact.SharedAt = clonePtr(t.Contact.SharedAt)
	cp.Payment = clonePtr(t.Payment)
	cp.Cancellation = clonePtr(t.Cancellation)
	if t.Dispute != nil {
		d := *t.Dispute
		d.ResolvedBy = clonePtr(t.Dispute.ResolvedBy)
		d.SplitFraction = clonePtr(t.Dispute.SplitFraction)
		d.ResolvedAt = clonePtr(t.Dispute.ResolvedAt)
		cp.Dispute = &d
	}
	return &cp
}

// TransitionEvent is published after every committed state change.
type TransitionEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Event         Event     `json:"event"`
	From          Status    `json:"from,omitempty"`
	To            Status    `json:"to"`
	ActorID       uuid.UUID `json:"actor_id"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
