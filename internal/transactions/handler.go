package transactions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/disclosure"
	"github.com/localcredits/backend/internal/dispute"
	"github.com/localcredits/backend/internal/escrow"
	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/lock"
	"github.com/localcredits/backend/internal/middleware"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
	"github.com/localcredits/backend/internal/web"
)

type CreateTransactionRequest struct {
	ServiceID         uuid.UUID  `json:"service_id" validate:"required"`
	AgreedPrice       *int64     `json:"agreed_price" validate:"omitempty,gt=0"`
	EstimatedHours    *float64   `json:"estimated_hours" validate:"omitempty,gt=0"`
	Description       string     `json:"description" validate:"required,max=4000"`
	CustomerNotes     string     `json:"customer_notes" validate:"max=4000"`
	ScheduledDate     *time.Time `json:"scheduled_date"`
	EstimatedDuration string     `json:"estimated_duration" validate:"max=100"`
	ServiceAddress    string     `json:"service_address" validate:"max=500"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type ResolveRequest struct {
	Resolution    models.Resolution `json:"resolution" validate:"required"`
	SplitFraction *float64          `json:"split_fraction"`
}

type TransitionResponse struct {
	ID     uuid.UUID     `json:"id"`
	Status models.Status `json:"status"`
}

type Handler struct {
	engine *Engine
	log    *slog.Logger
}

func NewHandler(engine *Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, log: log}
}

// POST /api/v1/transactions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.engine.CreateTransaction(r.Context(), CreateRequest{
		CustomerID:     middleware.AccountIDFromCtx(r.Context()),
		ServiceID:      req.ServiceID,
		AgreedPrice:    req.AgreedPrice,
		EstimatedHours: req.EstimatedHours,
		Description:    req.Description,
		CustomerNotes:  req.CustomerNotes,
		Schedule: models.Schedule{
			Date:              req.ScheduledDate,
			EstimatedDuration: req.EstimatedDuration,
			Address:           req.ServiceAddress,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, TransitionResponse{ID: id, Status: models.StatusPending})
}

type transitionOp func(ctx context.Context, id, actor uuid.UUID) (models.Status, error)

type reasonOp func(ctx context.Context, id, actor uuid.UUID, reason string) (models.Status, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op transitionOp) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := op(r.Context(), id, middleware.AccountIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, TransitionResponse{ID: id, Status: status})
}

// transitionWithReason reads an optional {"reason": ...} body. Clients may
// post these actions with no body at all.
func (h *Handler) transitionWithReason(w http.ResponseWriter, r *http.Request, op reasonOp) {
	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(w, r, &req); err != nil {
			web.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	h.transition(w, r, func(ctx context.Context, id, actor uuid.UUID) (models.Status, error) {
		return op(ctx, id, actor, req.Reason)
	})
}

// POST /api/v1/transactions/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.AcceptTransaction)
}

// POST /api/v1/transactions/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transitionWithReason(w, r, h.engine.RejectTransaction)
}

// POST /api/v1/transactions/{id}/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.StartWork)
}

// POST /api/v1/transactions/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.CompleteWork)
}

// POST /api/v1/transactions/{id}/confirm-payment
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.ConfirmPayment)
}

// POST /api/v1/transactions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transitionWithReason(w, r, h.engine.CancelTransaction)
}

// POST /api/v1/transactions/{id}/dispute
func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor uuid.UUID) (models.Status, error) {
		return h.engine.RaiseDispute(ctx, id, actor, req.Reason)
	})
}

// POST /api/v1/admin/transactions/{id}/resolve
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.transition(w, r, func(ctx context.Context, id, admin uuid.UUID) (models.Status, error) {
		return h.engine.ResolveDispute(ctx, id, admin, req.Resolution, req.SplitFraction)
	})
}

// GET /api/v1/transactions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	txn, err := h.engine.GetTransaction(r.Context(), id, middleware.AccountIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, txn)
}

// GET /api/v1/transactions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListForAccount(r.Context(), middleware.AccountIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	web.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/transactions/{id}/contact
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	card, err := h.engine.Contact(r.Context(), id, middleware.AccountIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, card)
}

// statusFor maps engine errors to HTTP statuses. Hold bookkeeping failures
// are internal: the unit was rolled back but something is inconsistent.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrHoldNotFound),
		errors.Is(err, ledger.ErrHoldAlreadyResolved),
		errors.Is(err, ledger.ErrEscrowShortfall),
		errors.Is(err, escrow.ErrUnsettledHold):
		return http.StatusInternalServerError
	case errors.Is(err, lock.ErrNotAcquired):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, disclosure.ErrNotParty):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, dispute.ErrNotDisputed),
		errors.Is(err, escrow.ErrHoldFrozen),
		errors.Is(err, disclosure.ErrNotRevealed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, dispute.ErrInvalidResolution),
		errors.Is(err, ledger.ErrInvalidFraction):
		return http.StatusBadRequest
	case errors.Is(err, ErrSelfDealing),
		errors.Is(err, ErrServiceInactive),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "transaction request failed", "path", r.URL.Path, "error", err)
		web.WriteError(w, status, "internal error")
		return
	}
	web.WriteError(w, status, err.Error())
}
