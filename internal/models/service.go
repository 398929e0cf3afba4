package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a provider's listing. The engine only reads it to price a
// request and learn who the provider is.
type Service struct {
	ID          uuid.UUID `json:"id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Profession  string    `json:"profession"`
	Price       int64     `json:"price"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
