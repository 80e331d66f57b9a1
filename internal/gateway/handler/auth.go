package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// TokenIssuer Описываем, что нам нужно от сервиса
type TokenIssuer interface {
	GenerateToken(req domain.LoginRequest) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	service TokenIssuer
}

func NewAuthHandler(s TokenIssuer) *AuthHandler {
	return &AuthHandler{service: s}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.service.GenerateToken(req)
	if err != nil {
		// Не раскрываем, что именно не совпало
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, token)
}
