// Package account serves the caller's own account, its credit ledger and
// the admin balance audit.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/middleware"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
	"github.com/localcredits/backend/internal/web"
)

type Reader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Handler struct {
	accounts Reader
	snaps    repository.Snapshotter
	log      *slog.Logger
}

func NewHandler(accounts Reader, snaps repository.Snapshotter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{accounts: accounts, snaps: snaps, log: log}
}

type MeResponse struct {
	ID             uuid.UUID   `json:"id"`
	Email          string      `json:"email"`
	DisplayName    string      `json:"display_name"`
	Phone          string      `json:"phone"`
	Location       string      `json:"location"`
	Role           models.Role `json:"role"`
	Balance        int64       `json:"balance"`
	Escrow         int64       `json:"escrow"`
	EarnedLifetime int64       `json:"earned_lifetime"`
	SpentLifetime  int64       `json:"spent_lifetime"`
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.GetAccount(r.Context(), middleware.AccountIDFromCtx(r.Context()))
	if errors.Is(err, repository.ErrNotFound) {
		web.WriteError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "get account failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	web.WriteJSON(w, http.StatusOK, MeResponse{
		ID:             acc.ID,
		Email:          acc.Email,
		DisplayName:    acc.DisplayName,
		Phone:          acc.Phone,
		Location:       acc.Location,
		Role:           acc.Role,
		Balance:        acc.Balance,
		Escrow:         acc.Escrow,
		EarnedLifetime: acc.EarnedLifetime,
		SpentLifetime:  acc.SpentLifetime,
	})
}

// GET /api/v1/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accounts.ListLedgerEntries(r.Context(), middleware.AccountIDFromCtx(r.Context()))
	if err != nil {
		h.log.ErrorContext(r.Context(), "list credit ledger failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	web.WriteJSON(w, http.StatusOK, entries)
}

type AuditResponse struct {
	Accounts      int      `json:"accounts"`
	Holds         int      `json:"holds"`
	TotalHoldings int64    `json:"total_holdings"`
	OK            bool     `json:"ok"`
	Problems      []string `json:"problems,omitempty"`
}

// GET /api/v1/admin/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromCtx(r.Context())
	if p.Role != models.RoleAdmin {
		web.WriteError(w, http.StatusForbidden, "admin only")
		return
	}
	accounts, holds, err := h.snaps.Snapshot(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "audit snapshot failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := AuditResponse{
		Accounts:      len(accounts),
		Holds:         len(holds),
		TotalHoldings: ledger.TotalHoldings(accounts),
		OK:            true,
	}
	if err := ledger.Audit(accounts, holds); err != nil {
		resp.OK = false
		resp.Problems = splitJoined(err)
		h.log.ErrorContext(r.Context(), "ledger audit failed", "invariant_breach", true, "error", err)
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
