package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

type staticValidator struct {
	claims *domain.CustomClaims
	err    error
	seen   string
}

func (v *staticValidator) VerifyToken(raw string) (*domain.CustomClaims, error) {
	v.seen = raw
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func TestMiddlewareStripsBearerScheme(t *testing.T) {
	v := &staticValidator{claims: &domain.CustomClaims{
		UserID: "slack:U123",
		Scopes: map[string]bool{domain.ScopeSubmit: true},
	}}

	var gotUser string
	h := NewMiddleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
	req.Header.Set("Authorization", "Bearer raw-token-value")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// Валидатору достается токен без схемы
	assert.Equal(t, "raw-token-value", v.seen)
	assert.Equal(t, "slack:U123", gotUser)
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	v := &staticValidator{claims: &domain.CustomClaims{UserID: "slack:U123"}}
	h := NewMiddleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	for _, header := range []string{"", "Basic dXNlcg==", "Bearer ", "raw-token"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	v := &staticValidator{err: errors.New("gateway token rejected: signature invalid")}
	h := NewMiddleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	v := &staticValidator{claims: &domain.CustomClaims{
		UserID: "slack:U123",
		Scopes: map[string]bool{domain.ScopeDecide: true},
	}}

	build := func(scope string) http.Handler {
		reached := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		return NewMiddleware(v, zap.NewNop())(RequireScope(scope)(reached))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	build(domain.ScopeDecide).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/approvers", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec = httptest.NewRecorder()
	build(domain.ScopeRegistry).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
