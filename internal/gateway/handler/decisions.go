package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
)

// Decider Описываем, что нам нужно от движка согласования
type Decider interface {
	Decide(ctx context.Context, requestID, approverID string, approve bool, comment string) (*domain.PendingRequest, error)
}

type DecisionsHandler struct {
	engine Decider
}

func NewDecisionsHandler(engine Decider) *DecisionsHandler {
	return &DecisionsHandler{engine: engine}
}

type decideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide — POST /v1/requests/{id}/decide.
// Согласующий — идентичность из токена; принадлежность снимку проверяет
// движок. Ответ отражает состояние записи ПОСЛЕ решения: для одобренных
// это уже итог исполнения (EXECUTED/FAILED), вызов синхронный.
func (h *DecisionsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	approverID := auth.UserID(r.Context())
	result, err := h.engine.Decide(r.Context(), id, approverID, req.Approved, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
