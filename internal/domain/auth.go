package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string          `json:"user_id"` // Идентичность в чате (инициатор/согласующий)
	Scopes map[string]bool `json:"scopes"`  // "requests.submit": true, "registry.manage": true
	jwt.RegisteredClaims
}

// Scope-константы защищенного периметра
const (
	ScopeSubmit   = "requests.submit"
	ScopeDecide   = "requests.decide"
	ScopeRegistry = "registry.manage"
)

// Secure Token Issuing
type LoginRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	// ActAs — идентичность пользователя чата, от имени которого действует транспорт
	ActAs string `json:"act_as,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}
