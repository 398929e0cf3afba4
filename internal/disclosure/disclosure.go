// Package disclosure reveals customer and provider contact details to each
// other. The reveal happens once, on acceptance, and is never undone.
package disclosure

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
)

var (
	ErrNotRevealed = errors.New("contact details not shared yet")
	ErrNotParty    = errors.New("viewer is not a party to the transaction")
)

// Reveal marks both sides' contact details as shared. It reports false when
// they already were, leaving the original timestamp untouched.
func Reveal(txn *models.Transaction, at time.Time) bool {
	if txn.Contact.Revealed() {
		return false
	}
	txn.Contact.ProviderShared = true
	txn.Contact.CustomerShared = true
	if txn.Contact.SharedAt == nil {
		txn.Contact.SharedAt = &at
	}
	return true
}

// Card is what one party sees of the other once contact is shared.
type Card struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// ContactFor returns the counterparty's card for viewer. counterparty must be
// the other side of txn.
func ContactFor(txn *models.Transaction, viewerID uuid.UUID, counterparty *models.Account) (*Card, error) {
	other, ok := txn.Counterparty(viewerID)
	if !ok || counterparty == nil || counterparty.ID != other {
		return nil, ErrNotParty
	}
	if !txn.Contact.Revealed() {
		return nil, ErrNotRevealed
	}
	return &Card{
		AccountID:   counterparty.ID,
		DisplayName: counterparty.DisplayName,
		Email:       counterparty.Email,
		Phone:       counterparty.Phone,
		Location:    counterparty.Location,
	}, nil
}
