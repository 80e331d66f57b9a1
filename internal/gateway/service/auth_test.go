package service

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

func newTokenFixture(t *testing.T) (*TokenService, *auth.BaseValidator) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	clients := []infra.ClientConfig{{
		ID:         "slack-bot",
		SecretHash: string(hash),
		Scopes:     map[string]bool{domain.ScopeSubmit: true, domain.ScopeDecide: true},
	}}

	return NewTokenService(clients, key, time.Hour), auth.NewBaseValidator(&key.PublicKey)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, validator := newTokenFixture(t)

	resp, err := svc.GenerateToken(domain.LoginRequest{
		ClientID: "slack-bot",
		Secret:   "s3cret",
		ActAs:    "slack:U123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Greater(t, resp.ExpiresIn, int64(0))

	claims, err := validator.VerifyToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "slack:U123", claims.UserID)
	assert.True(t, claims.Scopes[domain.ScopeSubmit])
	assert.False(t, claims.Scopes[domain.ScopeRegistry])
}

func TestWrongSecretRejected(t *testing.T) {
	svc, _ := newTokenFixture(t)

	_, err := svc.GenerateToken(domain.LoginRequest{
		ClientID: "slack-bot",
		Secret:   "wrong",
		ActAs:    "slack:U123",
	})
	assert.Error(t, err)
}

func TestUnknownClientRejected(t *testing.T) {
	svc, _ := newTokenFixture(t)

	_, err := svc.GenerateToken(domain.LoginRequest{
		ClientID: "rogue",
		Secret:   "s3cret",
		ActAs:    "slack:U123",
	})
	assert.Error(t, err)
}

func TestActAsRequired(t *testing.T) {
	svc, _ := newTokenFixture(t)

	_, err := svc.GenerateToken(domain.LoginRequest{
		ClientID: "slack-bot",
		Secret:   "s3cret",
	})
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	svc, validator := newTokenFixture(t)

	resp, err := svc.GenerateToken(domain.LoginRequest{
		ClientID: "slack-bot",
		Secret:   "s3cret",
		ActAs:    "slack:U123",
	})
	require.NoError(t, err)

	_, err = validator.VerifyToken(resp.AccessToken + "x")
	assert.Error(t, err)
}
