package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
	"github.com/xela07ax/crm-approval-gateway/internal/policy"
)

// Freezer — стоп-кран по инициаторам
type Freezer interface {
	Freeze(ctx context.Context, requesterID string) error
	Unfreeze(ctx context.Context, requesterID string) error
}

// RegistryHandler — администрирование реестров ролей, маппинга и заморозки.
// Все ручки требуют scope registry.manage ПЛЮС админскую роль вызывающего:
// транспорт с правом управления не дает обычному пользователю менять реестры.
type RegistryHandler struct {
	registry *policy.Registry
	freezer  Freezer
}

func NewRegistryHandler(registry *policy.Registry, freezer Freezer) *RegistryHandler {
	return &RegistryHandler{registry: registry, freezer: freezer}
}

// requireAdmin — вторая линия после scope-проверки middleware
func (h *RegistryHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !h.registry.IsAdmin(auth.UserID(r.Context())) {
		http.Error(w, "admin role required", http.StatusForbidden)
		return false
	}
	return true
}

func (h *RegistryHandler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvers": h.registry.Approvers()})
}

func (h *RegistryHandler) AddApprover(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.registry.AddApprover(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) RemoveApprover(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.registry.RemoveApprover(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.registry.AddAdmin(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.registry.RemoveAdmin(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mappingRequest struct {
	CRMUserID int64 `json:"crm_user_id"`
}

// SetMapping — PUT /v1/mappings/{chatID}: связь чат-идентичности с
// пользователем CRM для атрибуции создаваемых записей
func (h *RegistryHandler) SetMapping(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CRMUserID <= 0 {
		http.Error(w, "crm_user_id must be a positive integer", http.StatusBadRequest)
		return
	}

	if err := h.registry.SetMapping(r.Context(), chi.URLParam(r, "chatID"), req.CRMUserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	chatID := chi.URLParam(r, "chatID")
	crmUserID, ok := h.registry.CRMUser(chatID)
	if !ok {
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"chat_id":     chatID,
		"crm_user_id": strconv.FormatInt(crmUserID, 10),
	})
}

// Freeze — POST /v1/requesters/{id}/freeze (мгновенный стоп-кран)
func (h *RegistryHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.freezer.Freeze(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.freezer.Unfreeze(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
