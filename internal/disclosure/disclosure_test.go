package disclosure

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcredits/backend/internal/models"
)

func TestReveal_Idempotent(t *testing.T) {
	txn := &models.Transaction{}
	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, Reveal(txn, first))
	assert.True(t, txn.Contact.ProviderShared)
	assert.True(t, txn.Contact.CustomerShared)
	require.NotNil(t, txn.Contact.SharedAt)

	assert.False(t, Reveal(txn, first.Add(time.Hour)))
	assert.Equal(t, first, *txn.Contact.SharedAt)
}

func TestContactFor(t *testing.T) {
	customer := &models.Account{ID: uuid.New(), DisplayName: "Ana", Email: "ana@example.com", Phone: "555-0100"}
	provider := &models.Account{ID: uuid.New(), DisplayName: "Bo", Email: "bo@example.com", Phone: "555-0199"}
	txn := &models.Transaction{CustomerID: customer.ID, ProviderID: provider.ID}

	_, err := ContactFor(txn, customer.ID, provider)
	assert.ErrorIs(t, err, ErrNotRevealed)

	Reveal(txn, time.Now())

	card, err := ContactFor(txn, customer.ID, provider)
	require.NoError(t, err)
	assert.Equal(t, "555-0199", card.Phone)

	card, err = ContactFor(txn, provider.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", card.Email)

	_, err = ContactFor(txn, uuid.New(), provider)
	assert.ErrorIs(t, err, ErrNotParty)

	_, err = ContactFor(txn, customer.ID, customer)
	assert.ErrorIs(t, err, ErrNotParty, "a party never receives its own card")
}
