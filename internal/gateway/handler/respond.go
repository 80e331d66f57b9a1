package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/xela07ax/crm-approval-gateway/internal/crm"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// writeError маппит доменные ошибки на HTTP-статусы.
// Инициатор в чате должен различать "исправь запрос" (400),
// "нельзя" (403), "нет такой записи" (404) и "уже решено" (409).
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthorizationError
		notFoundErr   *domain.NotFoundError
		rateErr       *crm.RateLimitedError
		apiErr        *crm.APIError
		transportErr  *crm.TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Problems: validationErr.Problems})

	case errors.As(err, &authErr):
		writeJSON(w, http.StatusForbidden, errorBody{Error: authErr.Reason})

	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFoundErr.Error()})

	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "request not found"})

	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})

	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "crm rate budget exhausted"})

	case errors.As(err, &apiErr), errors.As(err, &transportErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})

	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
