// Package catalog manages provider service listings and feeds prices and
// providers to the transaction engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/notify"
)

var (
	ErrInvalidService = errors.New("invalid service")
)

type Service interface {
	CreateService(ctx context.Context, providerID uuid.UUID, title, description, profession string, price int64) (*models.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListActiveServices(ctx context.Context) ([]*models.Service, error)
	SetActive(ctx context.Context, id, providerID uuid.UUID, active bool) error
}

// TransactionReader loads the transaction an event refers to.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

type service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log}
}

var _ Service = (*service)(nil)

func (s *service) CreateService(ctx context.Context, providerID uuid.UUID, title, description, profession string, price int64) (*models.Service, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidService)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidService)
	}
	svc := &models.Service{
		ProviderID:  providerID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Profession:  strings.ToLower(strings.TrimSpace(profession)),
		Price:       price,
	}
	if err := s.store.Create(ctx, svc); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "service listed", "service_id", svc.ID, "provider_id", providerID, "price", price)
	return svc, nil
}

func (s *service) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return s.store.Get(ctx, id)
}

func (s *service) ListActiveServices(ctx context.Context) ([]*models.Service, error) {
	return s.store.ListActive(ctx)
}

func (s *service) SetActive(ctx context.Context, id, providerID uuid.UUID, active bool) error {
	return s.store.SetActive(ctx, id, providerID, active)
}

// Counters returns a notification handler that maintains the request and
// completed-job counters of listings.
func Counters(store Store, txns TransactionReader) notify.Handler {
	return notify.HandlerFunc(func(ctx context.Context, ev models.TransitionEvent) error {
		var record func(t *models.Transaction) error
		switch {
		case ev.Event == models.EventCreate:
			record = func(t *models.Transaction) error { return store.RecordRequest(ctx, t.ID, t.ServiceID) }
		case ev.To == models.StatusPaid:
			record = func(t *models.Transaction) error {
				return store.RecordCompletion(ctx, t.ID, t.ServiceID, t.ProviderID)
			}
		default:
			return nil
		}
		t, err := txns.GetTransaction(ctx, ev.TransactionID)
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", ev.TransactionID, err)
		}
		return record(t)
	})
}
