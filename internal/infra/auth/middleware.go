package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — проверка уже извлеченного из заголовка токена
type TokenValidator interface {
	VerifyToken(raw string) (*domain.CustomClaims, error)
}

const bearerScheme = "Bearer "

// Типизированные ключи контекста (избегаем коллизий со сторонними пакетами)
type ctxKey string

const (
	userIDKey ctxKey = "user_id"
	scopesKey ctxKey = "user_scopes"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Схема строго Bearer; валидатору достается токен без нее
			raw, isBearer := strings.CutPrefix(r.Header.Get("Authorization"), bearerScheme)
			raw = strings.TrimSpace(raw)
			if !isBearer || raw == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(raw)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), scopesKey, claims.Scopes)
			ctx = context.WithValue(ctx, userIDKey, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID достает идентичность из контекста запроса
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// HasScope проверяет право из токена
func HasScope(ctx context.Context, scope string) bool {
	scopes, ok := ctx.Value(scopesKey).(map[string]bool)
	return ok && scopes[scope]
}

// RequireScope — middleware для конкретного права
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
