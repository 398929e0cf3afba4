package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository/postgres"
)

// Store persists credentials next to the account row.
type Store interface {
	Create(ctx context.Context, a *models.Account, passwordHash string) error
	// GetByEmail returns the account and its password hash, or repository.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*models.Account, string, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Create inserts a new account and fills in its generated fields.
func (r *Repository) Create(ctx context.Context, a *models.Account, passwordHash string) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, phone, location, role, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, a.Email, passwordHash, a.DisplayName, a.Phone, a.Location, string(a.Role), a.Balance)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("create account: %w", postgres.MapError(err))
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, string, error) {
	var a models.Account
	var role, passwordHash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, balance, escrow, password_hash
		FROM accounts WHERE email = $1
	`, email)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &role, &a.Balance, &a.Escrow, &passwordHash); err != nil {
		return nil, "", fmt.Errorf("get account by email: %w", postgres.MapError(err))
	}
	a.Role = models.Role(role)
	return &a, passwordHash, nil
}
