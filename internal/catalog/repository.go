package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
	"github.com/localcredits/backend/internal/repository/postgres"
)

// Store is the persistence used by the catalog service.
type Store interface {
	Create(ctx context.Context, s *models.Service) error
	Get(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListActive(ctx context.Context) ([]*models.Service, error)
	SetActive(ctx context.Context, id, providerID uuid.UUID, active bool) error
	RecordRequest(ctx context.Context, transactionID, serviceID uuid.UUID) error
	RecordCompletion(ctx context.Context, transactionID, serviceID, providerID uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const serviceColumns = `id, provider_id, title, description, profession, price, is_active, created_at`

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	if err := row.Scan(&s.ID, &s.ProviderID, &s.Title, &s.Description, &s.Profession, &s.Price, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) Create(ctx context.Context, s *models.Service) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (provider_id, title, description, profession, price, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, is_active, created_at
	`, s.ProviderID, s.Title, s.Description, s.Profession, s.Price).Scan(&s.ID, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", postgres.MapError(err))
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, postgres.MapError(err))
	}
	return s, nil
}

func (r *Repository) ListActive(ctx context.Context) ([]*models.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE is_active
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", postgres.MapError(err))
	}
	defer rows.Close()
	var list []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// SetActive toggles a listing. Only the owning provider matches the row.
func (r *Repository) SetActive(ctx context.Context, id, providerID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE services SET is_active = $3 WHERE id = $1 AND provider_id = $2`, id, providerID, active)
	if err != nil {
		return fmt.Errorf("update service %s: %w", id, postgres.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update service %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

const (
	kindRequested = "requested"
	kindCompleted = "completed"
)

// RecordRequest counts a request against the service once per transaction.
func (r *Repository) RecordRequest(ctx context.Context, transactionID, serviceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		WITH ins AS (
			INSERT INTO service_events (transaction_id, kind) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		UPDATE services SET requests = requests + 1
		WHERE id = $3 AND EXISTS (SELECT 1 FROM ins)
	`, transactionID, kindRequested, serviceID)
	if err != nil {
		return fmt.Errorf("record request for %s: %w", serviceID, postgres.MapError(err))
	}
	return nil
}

// RecordCompletion counts a paid job against the service and its provider
// once per transaction.
func (r *Repository) RecordCompletion(ctx context.Context, transactionID, serviceID, providerID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO service_events (transaction_id, kind) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, transactionID, kindCompleted)
	if err != nil {
		return fmt.Errorf("record completion for %s: %w", serviceID, postgres.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE services SET completed_jobs = completed_jobs + 1 WHERE id = $1`, serviceID); err != nil {
		return fmt.Errorf("record completion for %s: %w", serviceID, postgres.MapError(err))
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET completed_services = completed_services + 1 WHERE id = $1`, providerID); err != nil {
		return fmt.Errorf("record completion for %s: %w", providerID, postgres.MapError(err))
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
