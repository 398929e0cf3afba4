package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/web"
)

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Phone       string `json:"phone" validate:"max=32"`
	Location    string `json:"location" validate:"max=200"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AccountResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
	Balance     int64       `json:"balance"`
	Escrow      int64       `json:"escrow"`
}

type LoginResponse struct {
	Token string `json:"token"`
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

// POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := h.svc.Register(r.Context(), RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Location:    req.Location,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			web.WriteError(w, http.StatusConflict, "email already registered")
			return
		}
		h.log.ErrorContext(r.Context(), "register failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	web.WriteJSON(w, http.StatusCreated, accountToResponse(acc))
}

// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			web.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.log.ErrorContext(r.Context(), "login failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	web.WriteJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func accountToResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID.String(),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		Balance:     a.Balance,
		Escrow:      a.Escrow,
	}
}
