package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	hashes   map[string]string
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]*models.Account{}, hashes: map[string]string{}}
}

func (m *memStore) Create(_ context.Context, a *models.Account, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Email]; ok {
		return repository.ErrDuplicate
	}
	a.ID = uuid.New()
	cp := *a
	m.accounts[a.Email] = &cp
	m.hashes[a.Email] = hash
	return nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*models.Account, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil, "", repository.ErrNotFound
	}
	cp := *a
	return &cp, m.hashes[email], nil
}

var testSecret = []byte("test-secret-at-least-16")

func newTestService(store Store) *service {
	return NewService(store, Options{Secret: testSecret, TokenTTL: time.Hour, AdminEmails: []string{"Admin@Example.com"}}, nil)
}

func TestRegister(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	acc, err := svc.Register(ctx, RegisterParams{Email: " Ann@Example.com ", Password: "password1", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", acc.Email)
	assert.Equal(t, models.RoleMember, acc.Role)
	assert.Equal(t, models.StartingCredits, acc.Balance)
	assert.Zero(t, acc.Escrow)

	_, err = svc.Register(ctx, RegisterParams{Email: "ann@example.com", Password: "password2", DisplayName: "Ann"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	admin, err := svc.Register(ctx, RegisterParams{Email: "admin@example.com", Password: "password1", DisplayName: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	acc, err := svc.Register(ctx, RegisterParams{Email: "bo@example.com", Password: "password1", DisplayName: "Bo"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "bo@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := svc.Login(ctx, "BO@example.com", "password1")
	require.NoError(t, err)

	id, role, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, models.RoleMember, role)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	sub := uuid.New()

	expired, err := svc.issueToken(sub, models.RoleMember)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err = svc.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	svc.now = time.Now

	other := NewService(newMemStore(), Options{Secret: []byte("another-secret-value")}, nil)
	forged, err := other.issueToken(sub, models.RoleAdmin)
	require.NoError(t, err)
	_, _, err = svc.ValidateToken(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub.String()},
		Role:             models.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = svc.ValidateToken(ctx, none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	h := NewHandler(newTestService(newMemStore()), nil)

	post := func(fn http.HandlerFunc, body any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b)))
		return rec
	}

	rec := post(h.Register, RegisterRequest{Email: "cy@example.com", Password: "password1", DisplayName: "Cy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc AccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&acc))
	assert.Equal(t, int64(50), acc.Balance)

	rec = post(h.Register, RegisterRequest{Email: "cy@example.com", Password: "password1", DisplayName: "Cy"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(h.Register, RegisterRequest{Email: "not-an-email", Password: "short", DisplayName: "Cy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Login, LoginRequest{Email: "cy@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.Login, LoginRequest{Email: "cy@example.com", Password: "password1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.NotEmpty(t, login.Token)
}
