package transactions

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

// Party is who may issue an event.
type Party int

const (
	PartyCustomer Party = iota + 1
	PartyProvider
	PartyEither
	PartyAdmin
)

func (p Party) String() string {
	switch p {
	case PartyCustomer:
		return "customer"
	case PartyProvider:
		return "provider"
	case PartyEither:
		return "either party"
	case PartyAdmin:
		return "admin"
	}
	return "unknown"
}

// Rule is one legal transition.
type Rule struct {
	From  models.Status
	Event models.Event
	To    models.Status
	Actor Party
}

type ruleKey struct {
	from  models.Status
	event models.Event
}

var table = map[ruleKey]Rule{}

func init() {
	for _, r := range []Rule{
		{models.StatusPending, models.EventAccept, models.StatusAccepted, PartyProvider},
		{models.StatusPending, models.EventReject, models.StatusRejected, PartyProvider},
		{models.StatusPending, models.EventCancel, models.StatusCancelled, PartyEither},
		{models.StatusAccepted, models.EventCancel, models.StatusCancelled, PartyEither},
		{models.StatusInProgress, models.EventCancel, models.StatusCancelled, PartyEither},
		{models.StatusAccepted, models.EventStart, models.StatusInProgress, PartyProvider},
		{models.StatusInProgress, models.EventComplete, models.StatusCompleted, PartyProvider},
		{models.StatusCompleted, models.EventConfirmPayment, models.StatusPaid, PartyCustomer},
		{models.StatusAccepted, models.EventRaiseDispute, models.StatusDisputed, PartyEither},
		{models.StatusInProgress, models.EventRaiseDispute, models.StatusDisputed, PartyEither},
		{models.StatusCompleted, models.EventRaiseDispute, models.StatusDisputed, PartyEither},
		{models.StatusDisputed, models.EventResolve, models.StatusDisputedResolved, PartyAdmin},
	} {
		table[ruleKey{r.From, r.Event}] = r
	}
}

// Lookup returns the rule for event from status, or ErrInvalidTransition.
func Lookup(from models.Status, event models.Event) (Rule, error) {
	r, ok := table[ruleKey{from, event}]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, event, from)
	}
	return r, nil
}

// Rules lists every legal transition.
func Rules() []Rule {
	out := make([]Rule, 0, len(table))
	for _, r := range table {
		out = append(out, r)
	}
	return out
}

// permits checks the party rule for a non-admin actor. Admin rules need the
// actor's role and are checked by the engine.
func (r Rule) permits(txn *models.Transaction, actor uuid.UUID) bool {
	switch r.Actor {
	case PartyCustomer:
		return actor == txn.CustomerID
	case PartyProvider:
		return actor == txn.ProviderID
	case PartyEither:
		return txn.IsParty(actor)
	}
	return false
}
