package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/localcredits/backend/internal/account"
	"github.com/localcredits/backend/internal/auth"
	"github.com/localcredits/backend/internal/catalog"
	"github.com/localcredits/backend/internal/middleware"
	"github.com/localcredits/backend/internal/transactions"
)

type Handlers struct {
	Auth         *auth.Handler
	Catalog      *catalog.Handler
	Transactions *transactions.Handler
	Account      *account.Handler
}

// New returns an http.Handler that serves the API under /api/v1.
func New(h Handlers, tokens middleware.TokenValidator, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Get("/services", h.Catalog.ListServices)
		r.Get("/services/{id}", h.Catalog.GetService)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(tokens))

			r.Post("/services", h.Catalog.CreateService)
			r.Patch("/services/{id}", h.Catalog.SetActive)

			r.Get("/account/me", h.Account.GetMe)
			r.Get("/credit-ledger", h.Account.ListCreditLedger)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.Transactions.Create)
				r.Get("/", h.Transactions.List)
				r.Get("/{id}", h.Transactions.Get)
				r.Get("/{id}/contact", h.Transactions.Contact)
				r.Post("/{id}/accept", h.Transactions.Accept)
				r.Post("/{id}/reject", h.Transactions.Reject)
				r.Post("/{id}/start", h.Transactions.Start)
				r.Post("/{id}/complete", h.Transactions.Complete)
				r.Post("/{id}/confirm-payment", h.Transactions.ConfirmPayment)
				r.Post("/{id}/cancel", h.Transactions.Cancel)
				r.Post("/{id}/dispute", h.Transactions.Dispute)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/transactions/{id}/resolve", h.Transactions.Resolve)
				r.Get("/audit", h.Account.Audit)
			})
		})
	})
	return r
}
