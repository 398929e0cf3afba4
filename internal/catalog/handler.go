package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/localcredits/backend/internal/middleware"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
	"github.com/localcredits/backend/internal/web"
)

type CreateServiceRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Profession  string `json:"profession" validate:"max=100"`
	Price       int64  `json:"price" validate:"gt=0"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/services
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	providerID := middleware.AccountIDFromCtx(r.Context())
	var req CreateServiceRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	svc, err := h.svc.CreateService(r.Context(), providerID, req.Title, req.Description, req.Profession, req.Price)
	if err != nil {
		h.writeError(w, r, "create service failed", err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, svc)
}

// GET /api/v1/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActiveServices(r.Context())
	if err != nil {
		h.writeError(w, r, "list services failed", err)
		return
	}
	if list == nil {
		list = []*models.Service{}
	}
	web.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/services/{id}
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	svc, err := h.svc.GetService(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get service failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, svc)
}

// PATCH /api/v1/services/{id}
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetActiveRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetActive(r.Context(), id, middleware.AccountIDFromCtx(r.Context()), *req.Active); err != nil {
		h.writeError(w, r, "update service failed", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]bool{"active": *req.Active})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, ErrInvalidService), errors.Is(err, repository.ErrInvalidEntity):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		web.WriteError(w, http.StatusNotFound, "service not found")
	default:
		h.log.ErrorContext(r.Context(), msg, "error", err)
		web.WriteError(w, http.StatusInternalServerError, msg)
	}
}
