package transactions

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

var (
	// ErrInvalidTransition is returned for an event that is not legal from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized is returned when the actor does not hold the role the event requires.
	ErrUnauthorized = errors.New("unauthorized")

	ErrSelfDealing     = errors.New("customer cannot request their own service")
	ErrServiceInactive = errors.New("service is not active")
	ErrInvalidPrice    = errors.New("price must be positive")
)

// TransitionError tells the caller which rule refused an event.
type TransitionError struct {
	TransactionID uuid.UUID
	From          models.Status
	Event         models.Event
	Actor         uuid.UUID
	Err           error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transaction %s: %s from %s by %s: %v", e.TransactionID, e.Event, e.From, e.Actor, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
