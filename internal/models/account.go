package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the platform-wide role of an account. Customer/provider are not
// account roles: any member can request or provide a service, and the party
// an account plays is decided per transaction.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// StartingCredits is granted to every newly registered member.
const StartingCredits int64 = 50

type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Phone          string    `json:"-"`
	Location       string    `json:"location,omitempty"`
	Role           Role      `json:"role"`
	Balance        int64     `json:"balance"`
	Escrow         int64     `json:"escrow"`
	EarnedLifetime int64     `json:"earned_lifetime"`
	SpentLifetime  int64     `json:"spent_lifetime"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Holdings is balance plus escrow: everything the account owns.
func (a *Account) Holdings() int64 { return a.Balance + a.Escrow }

func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }
