package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcredits/backend/internal/middleware"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

// memStore is an in-memory Store with the same once-per-transaction counting
// as the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	services  map[uuid.UUID]*models.Service
	requests  map[uuid.UUID]int
	completed map[uuid.UUID]int
	providers map[uuid.UUID]int
	seen      map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		services:  map[uuid.UUID]*models.Service{},
		requests:  map[uuid.UUID]int{},
		completed: map[uuid.UUID]int{},
		providers: map[uuid.UUID]int{},
		seen:      map[string]bool{},
	}
}

func (m *memStore) Create(_ context.Context, s *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID, s.IsActive, s.CreatedAt = uuid.New(), true, time.Now()
	cp := *s
	m.services[s.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListActive(context.Context) ([]*models.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Service
	for _, s := range m.services {
		if s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SetActive(_ context.Context, id, providerID uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok || s.ProviderID != providerID {
		return repository.ErrNotFound
	}
	s.IsActive = active
	return nil
}

func (m *memStore) once(txID uuid.UUID, kind string) bool {
	key := txID.String() + kind
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	return true
}

func (m *memStore) RecordRequest(_ context.Context, txID, serviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.once(txID, kindRequested) {
		m.requests[serviceID]++
	}
	return nil
}

func (m *memStore) RecordCompletion(_ context.Context, txID, serviceID, providerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.once(txID, kindCompleted) {
		m.completed[serviceID]++
		m.providers[providerID]++
	}
	return nil
}

type txnReader map[uuid.UUID]*models.Transaction

func (r txnReader) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, ok := r[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func TestCreateService_Validation(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()
	provider := uuid.New()

	_, err := svc.CreateService(ctx, provider, "  ", "", "", 5)
	assert.ErrorIs(t, err, ErrInvalidService)
	_, err = svc.CreateService(ctx, provider, "Tutoring", "", "", 0)
	assert.ErrorIs(t, err, ErrInvalidService)

	s, err := svc.CreateService(ctx, provider, " Tutoring ", "maths", " Teacher", 12)
	require.NoError(t, err)
	assert.Equal(t, "Tutoring", s.Title)
	assert.Equal(t, "teacher", s.Profession)
	assert.True(t, s.IsActive)

	got, err := svc.GetService(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Price)
}

func TestCounters(t *testing.T) {
	store := newMemStore()
	provider, serviceID := uuid.New(), uuid.New()
	txn := &models.Transaction{ID: uuid.New(), ProviderID: provider, ServiceID: serviceID}
	h := Counters(store, txnReader{txn.ID: txn})
	ctx := context.Background()

	created := models.TransitionEvent{TransactionID: txn.ID, Event: models.EventCreate, To: models.StatusPending}
	paid := models.TransitionEvent{TransactionID: txn.ID, Event: models.EventConfirmPayment, From: models.StatusCompleted, To: models.StatusPaid}
	accepted := models.TransitionEvent{TransactionID: txn.ID, Event: models.EventAccept, To: models.StatusAccepted}

	for _, ev := range []models.TransitionEvent{created, created, accepted, paid, paid} {
		require.NoError(t, h.Handle(ctx, ev))
	}
	assert.Equal(t, 1, store.requests[serviceID], "redelivered create counted once")
	assert.Equal(t, 1, store.completed[serviceID])
	assert.Equal(t, 1, store.providers[provider])

	err := h.Handle(ctx, models.TransitionEvent{TransactionID: uuid.New(), Event: models.EventCreate})
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func newTestRouter(h *Handler, caller uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithPrincipal(req.Context(), middleware.Principal{AccountID: caller, Role: models.RoleMember})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/services", h.CreateService)
	r.Get("/services", h.ListServices)
	r.Get("/services/{id}", h.GetService)
	r.Patch("/services/{id}", h.SetActive)
	return r
}

func TestHandler(t *testing.T) {
	store := newMemStore()
	provider := uuid.New()
	router := newTestRouter(NewHandler(NewService(store, nil), nil), provider)

	body, _ := json.Marshal(CreateServiceRequest{Title: "Gardening", Price: 8})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/services", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Service
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, provider, created.ProviderID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/services", bytes.NewReader([]byte(`{"title":"x","price":-1}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/services/"+created.ID.String(), bytes.NewReader([]byte(`{"active":false}`))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Service
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Empty(t, list, "deactivated listing is hidden")
}

func TestHandler_SetActiveOtherProvider(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	s, err := NewService(store, nil).CreateService(context.Background(), owner, "Cleaning", "", "", 4)
	require.NoError(t, err)

	router := newTestRouter(NewHandler(NewService(store, nil), nil), uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/services/"+s.ID.String(), bytes.NewReader([]byte(`{"active":false}`))))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
