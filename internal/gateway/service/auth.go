package service

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"golang.org/x/crypto/bcrypt"
)

// TokenService выдает RS256 токены чат-транспортам.
// Клиенты (Slack-бот, Telegram-бот) описаны в конфиге с bcrypt-хэшем
// секрета; act_as переносит чат-идентичность конечного пользователя
// в claims, и дальше весь шлюз работает от его имени.
type TokenService struct {
	clients    map[string]infra.ClientConfig
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewTokenService(clients []infra.ClientConfig, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *TokenService {
	byID := make(map[string]infra.ClientConfig, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return &TokenService{
		clients:    byID,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
	}
}

func (s *TokenService) GenerateToken(req domain.LoginRequest) (*domain.TokenResponse, error) {
	// 1. Аутентификация транспортного клиента
	client, ok := s.clients[req.ClientID]
	if !ok {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка секрета (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(req.Secret)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	if req.ActAs == "" {
		return nil, errors.New("act_as user id is required")
	}

	// 3. Формирование Claims (Scopes берем из прав клиента в конфиге)
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: req.ActAs,
		Scopes: client.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "crm-approval-gateway",
			Subject:   req.ActAs,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
