package transactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/disclosure"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

// GetTransaction returns a transaction to one of its parties or an admin.
func (e *Engine) GetTransaction(ctx context.Context, id, viewerID uuid.UUID) (*models.Transaction, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.IsParty(viewerID) {
		return txn, nil
	}
	acc, err := e.store.GetAccount(ctx, viewerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if acc == nil || !acc.IsAdmin() {
		return nil, fmt.Errorf("%w: %s is not a party to %s", ErrUnauthorized, viewerID, id)
	}
	return txn, nil
}

// ListForAccount returns every transaction accountID is party to, newest first.
func (e *Engine) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	return e.store.ListTransactionsByAccount(ctx, accountID)
}

// Contact returns the counterparty's contact card once it has been shared.
func (e *Engine) Contact(ctx context.Context, id, viewerID uuid.UUID) (*disclosure.Card, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	other, ok := txn.Counterparty(viewerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a party to %s", ErrUnauthorized, viewerID, id)
	}
	acc, err := e.store.GetAccount(ctx, other)
	if err != nil {
		return nil, err
	}
	return disclosure.ContactFor(txn, viewerID, acc)
}
