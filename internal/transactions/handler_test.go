package transactions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// idTokens treats the bearer token as the caller's account id.
type idTokens struct{}

func (idTokens) ValidateToken(_ context.Context, token string) (uuid.UUID, models.Role, error) {
	id, err := uuid.Parse(token)
	return id, models.RoleMember, err
}

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(f.engine, nil)
	r := chi.NewRouter()
	r.Use(middleware.BearerAuth(idTokens{}))
	r.Post("/transactions", h.Create)
	r.Get("/transactions", h.List)
	r.Get("/transactions/{id}", h.Get)
	r.Get("/transactions/{id}/contact", h.Contact)
	r.Post("/transactions/{id}/accept", h.Accept)
	r.Post("/transactions/{id}/reject", h.Reject)
	r.Post("/transactions/{id}/start", h.Start)
	r.Post("/transactions/{id}/complete", h.Complete)
	r.Post("/transactions/{id}/confirm-payment", h.ConfirmPayment)
	r.Post("/transactions/{id}/cancel", h.Cancel)
	r.Post("/transactions/{id}/dispute", h.Dispute)
	r.Post("/admin/transactions/{id}/resolve", h.Resolve)
	return r
}

type client struct {
	t      *testing.T
	router http.Handler
}

func (c client) do(method, path string, actor uuid.UUID, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+actor.String())
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)
	c := client{t: t, router: newTestRouter(f)}

	rec := c.do(http.MethodPost, "/transactions", f.customer, CreateTransactionRequest{ServiceID: f.service, Description: "leaky tap"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TransitionResponse](t, rec)
	base := "/transactions/" + created.ID.String()

	rec = c.do(http.MethodGet, base+"/contact", f.customer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "contact hidden before acceptance")

	steps := []struct {
		path  string
		actor uuid.UUID
		want  models.Status
	}{
		{"/accept", f.provider, models.StatusAccepted},
		{"/start", f.provider, models.StatusInProgress},
		{"/complete", f.provider, models.StatusCompleted},
		{"/confirm-payment", f.customer, models.StatusPaid},
	}
	for _, s := range steps {
		rec = c.do(http.MethodPost, base+s.path, s.actor, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", s.path, rec.Body.String())
		assert.Equal(t, s.want, decode[TransitionResponse](t, rec).Status)
	}

	rec = c.do(http.MethodGet, base, f.provider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txn := decode[models.Transaction](t, rec)
	require.NotNil(t, txn.Payment)
	assert.Equal(t, int64(30), txn.Payment.Amount)

	rec = c.do(http.MethodGet, base+"/contact", f.customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[disclosure.Card](t, rec)
	assert.Equal(t, f.provider, card.AccountID)
	assert.Equal(t, "555-0199", card.Phone)

	rec = c.do(http.MethodGet, "/transactions", f.customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Transaction](t, rec), 1)

	rec = c.do(http.MethodGet, "/transactions", f.stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandler_RejectWithAndWithoutBody(t *testing.T) {
	f := newFixture(t)
	c := client{t: t, router: newTestRouter(f)}

	first := f.create(t)
	rec := c.do(http.MethodPost, "/transactions/"+first.String()+"/reject", f.provider, ReasonRequest{Reason: "fully booked"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fully booked", f.publisher.last().Reason)

	second := f.create(t)
	rec = c.do(http.MethodPost, "/transactions/"+second.String()+"/reject", f.provider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusRejected, decode[TransitionResponse](t, rec).Status)
}

func TestHandler_DisputeAndResolve(t *testing.T) {
	f := newFixture(t)
	c := client{t: t, router: newTestRouter(f)}
	id := f.create(t)
	base := "/transactions/" + id.String()
	_, err := f.engine.AcceptTransaction(context.Background(), id, f.provider)
	require.NoError(t, err)

	rec := c.do(http.MethodPost, base+"/dispute", f.customer, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")

	rec = c.do(http.MethodPost, base+"/dispute", f.customer, DisputeRequest{Reason: "no show"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/admin"+base+"/resolve", f.customer, ResolveRequest{Resolution: models.ResolutionFavorCustomer})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	half := 1.5
	rec = c.do(http.MethodPost, "/admin"+base+"/resolve", f.admin, ResolveRequest{Resolution: models.ResolutionSplit, SplitFraction: &half})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/admin"+base+"/resolve", f.admin, ResolveRequest{Resolution: "coin-flip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	half = 0.5
	rec = c.do(http.MethodPost, "/admin"+base+"/resolve", f.admin, ResolveRequest{Resolution: models.ResolutionSplit, SplitFraction: &half})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusDisputedResolved, decode[TransitionResponse](t, rec).Status)
	assert.Equal(t, int64(15), f.account(t, f.provider).Balance)
	assert.Equal(t, int64(85), f.account(t, f.customer).Balance)

	rec = c.do(http.MethodPost, "/admin"+base+"/resolve", f.admin, ResolveRequest{Resolution: models.ResolutionFavorCustomer})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	f := newFixture(t)
	c := client{t: t, router: newTestRouter(f)}
	id := f.create(t)
	base := "/transactions/" + id.String()
	tooMuch := int64(500)

	cases := []struct {
		name   string
		method string
		path   string
		actor  uuid.UUID
		body   any
		want   int
	}{
		{"bad id", http.MethodPost, "/transactions/nope/accept", f.provider, nil, http.StatusBadRequest},
		{"unknown transaction", http.MethodPost, "/transactions/" + uuid.NewString() + "/accept", f.provider, nil, http.StatusNotFound},
		{"wrong actor", http.MethodPost, base + "/accept", f.customer, nil, http.StatusForbidden},
		{"illegal event", http.MethodPost, base + "/complete", f.provider, nil, http.StatusConflict},
		{"stranger reads", http.MethodGet, base, f.stranger, nil, http.StatusForbidden},
		{"stranger contact", http.MethodGet, base + "/contact", f.stranger, nil, http.StatusForbidden},
		{"own service", http.MethodPost, "/transactions", f.provider, CreateTransactionRequest{ServiceID: f.service, Description: "x"}, http.StatusUnprocessableEntity},
		{"unknown service", http.MethodPost, "/transactions", f.customer, CreateTransactionRequest{ServiceID: uuid.New(), Description: "x"}, http.StatusNotFound},
		{"missing description", http.MethodPost, "/transactions", f.customer, CreateTransactionRequest{ServiceID: f.service}, http.StatusBadRequest},
		{"broke customer", http.MethodPost, "/transactions", f.customer, CreateTransactionRequest{ServiceID: f.service, AgreedPrice: &tooMuch, Description: "x"}, http.StatusPaymentRequired},
		{"client sets credits", http.MethodPost, "/transactions", f.customer, map[string]any{"service_id": f.service, "credits": 1, "description": "x"}, http.StatusBadRequest},
		{"non-positive hours", http.MethodPost, "/transactions", f.customer, map[string]any{"service_id": f.service, "estimated_hours": 0, "description": "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := c.do(tc.method, tc.path, tc.actor, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[web.ErrorResponse](t, rec).Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&TransitionError{Err: ErrInvalidTransition}, http.StatusConflict},
		{dispute.ErrNotDisputed, http.StatusConflict},
		{escrow.ErrHoldFrozen, http.StatusConflict},
		{repository.ErrNotFound, http.StatusNotFound},
		{ledger.ErrHoldNotFound, http.StatusInternalServerError},
		{ledger.ErrEscrowShortfall, http.StatusInternalServerError},
		{ledger.ErrInsufficientBalance, http.StatusPaymentRequired},
		{ledger.ErrInvalidFraction, http.StatusBadRequest},
		{ErrInvalidPrice, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: txn", lock.ErrNotAcquired), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
