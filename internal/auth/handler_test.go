package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

type memoryAccountRepo struct {
	byEmail map[string]Account
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{byEmail: make(map[string]Account)}
}

func (r *memoryAccountRepo) FindByEmail(ctx context.Context, email string) (Account, error) {
	a, ok := r.byEmail[email]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return a, nil
}

func (r *memoryAccountRepo) Create(ctx context.Context, account Account) (Account, error) {
	if _, ok := r.byEmail[account.Email]; ok {
		return Account{}, shared.ErrConflict
	}
	account.ID = fmt.Sprintf("acc-%d", len(r.byEmail)+1)
	account.IsActive = true
	r.byEmail[account.Email] = account
	return account, nil
}

type memoryTokens struct {
	issued  map[string]string
	revoked []string
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{issued: make(map[string]string)}
}

func (t *memoryTokens) Issue(ctx context.Context, ownerID string) (string, error) {
	token := fmt.Sprintf("tok-%d", len(t.issued)+1)
	t.issued[token] = ownerID
	return token, nil
}

func (t *memoryTokens) Revoke(ctx context.Context, token string) error {
	t.revoked = append(t.revoked, token)
	delete(t.issued, token)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memoryAccountRepo, *memoryTokens) {
	t.Helper()
	repo := newMemoryAccountRepo()
	tokens := newMemoryTokens()
	service := NewService(repo, tokens)
	return NewHandler(nil, service), repo, tokens
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterThenLogin(t *testing.T) {
	handler, _, tokens := newTestHandler(t)
	router := chi.NewRouter()
	handler.MountRoutes(router)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email": "toko@example.com", "name": "Toko Roti", "password": "rahasia-sekali",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email": "toko@example.com", "password": "rahasia-sekali",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token   string  `json:"token"`
		Account Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, resp.Account.ID, tokens.issued[resp.Token])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	router := chi.NewRouter()
	handler.MountRoutes(router)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email": "toko@example.com", "password": "rahasia-sekali",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email": "toko@example.com", "password": "salah-total",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	router := chi.NewRouter()
	handler.MountRoutes(router)

	body := map[string]string{"email": "toko@example.com", "password": "rahasia-sekali"}
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", body).Code)
	require.Equal(t, http.StatusConflict, doJSON(t, router, http.MethodPost, "/auth/register", body).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	handler, _, tokens := newTestHandler(t)
	router := chi.NewRouter()
	handler.MountRoutes(router)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email": "toko@example.com", "password": "rahasia-sekali",
	}).Code)
	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email": "toko@example.com", "password": "rahasia-sekali",
	})
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusNoContent, out.Code)
	require.Contains(t, tokens.revoked, resp.Token)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Bearer tok-1")
	require.Equal(t, "tok-1", BearerToken(req))
}
