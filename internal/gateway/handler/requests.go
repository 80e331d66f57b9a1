package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/gateway/service"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
)

// Submitter Описываем, что нам нужно от сервиса приема
type Submitter interface {
	Submit(ctx context.Context, traceID string, cmd service.SubmitCommand) (*service.SubmitOutcome, error)
}

// RequestReader — чтение записей согласования
type RequestReader interface {
	Pending(ctx context.Context, approverID string) ([]*domain.PendingRequest, error)
	Get(ctx context.Context, requestID string) (*domain.PendingRequest, error)
}

type RequestsHandler struct {
	intake Submitter
	engine RequestReader
}

func NewRequestsHandler(intake Submitter, engine RequestReader) *RequestsHandler {
	return &RequestsHandler{intake: intake, engine: engine}
}

// Submit — POST /v1/requests: единственная точка входа мутаций CRM.
// Инициатор — идентичность из токена, не из тела: транспорт не может
// подать запрос от чужого имени.
func (h *RequestsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd service.SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cmd.RequesterID = auth.UserID(r.Context())

	outcome, err := h.intake.Submit(r.Context(), infra.TraceID(r.Context()), cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Status == domain.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

// Pending — GET /v1/requests/pending: очередь решений согласующего из токена
func (h *RequestsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Pending(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get — GET /v1/requests/{id}: детали записи для просмотра перед решением
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
