package crm

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// RateLimitedError — бюджет вызовов исчерпан (локальный лимитер или 429 от Copper).
// RetryAfter позволяет вызывающему отличить "повтори позже" от "операция невалидна".
type RateLimitedError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *RateLimitedError) Unwrap() error { return e.Cause }

// TransportError — сетевой сбой (timeout, connection refused).
// RequestSent=false означает, что запрос гарантированно не дошел до сервера:
// только такие сбои безопасно ретраить для неидемпотентного create.
type TransportError struct {
	Cause       error
	RequestSent bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crm transport failure (sent=%v): %v", e.RequestSent, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// APIError — ответ Copper со статусом не-2xx.
// 4xx терминальны и отдаются дословно; 5xx ретраятся, потом терминальны.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api error: status %d: %s", e.StatusCode, e.Body)
}

// NotFound — цель update/delete отсутствует на стороне CRM
func (e *APIError) NotFound() bool { return e.StatusCode == 404 }

// Retryable — ключевой контракт классификации: определяет, может ли движок
// безопасно повторить вызов или обязан пометить запрос FAILED.
func Retryable(err error) bool {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return true
	}
	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// classifyTransport определяет, мог ли запрос достичь сервера.
// Ошибка dial (connection refused, DNS) — гарантированно не дошел.
// Timeout и обрывы чтения — исход неизвестен, считаем отправленным.
func classifyTransport(err error) *TransportError {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &TransportError{Cause: err, RequestSent: false}
	}
	return &TransportError{Cause: err, RequestSent: true}
}
