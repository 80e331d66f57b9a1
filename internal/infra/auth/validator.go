package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// BaseValidator проверяет подпись RS256 и разбирает claims шлюза.
// Принимает «голый» токен: извлечение из заголовка Authorization —
// забота HTTP-middleware.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		publicKey: pubKey,
		// Алгоритм зафиксирован на уровне парсера: токены с alg=none
		// или симметричной подписью отбрасываются до проверки ключа
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// VerifyToken реализует интерфейс auth.TokenValidator
func (v *BaseValidator) VerifyToken(raw string) (*domain.CustomClaims, error) {
	claims := &domain.CustomClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gateway token rejected: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("gateway token rejected: signature invalid")
	}
	// Токен без действующей идентичности бесполезен: инициатора и
	// согласующего шлюз берет только из claims
	if claims.UserID == "" {
		return nil, errors.New("gateway token rejected: no acting identity in claims")
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM-блок в ключ проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, errors.New("rsa public key is not configured")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("bad rsa public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey превращает PEM-блок в ключ подписи токенов
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, errors.New("rsa private key is not configured")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("bad rsa private key: %w", err)
	}
	return key, nil
}
