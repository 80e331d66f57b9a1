package crm

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

// Reliability оборачивает клиента в Retries + Circuit Breaker.
// Классификация Retryable() решает, что повторять; исчерпанные ретраи
// отдаются наверх как терминальная ошибка.
type Reliability struct {
	next     Invoker
	cb       *gobreaker.CircuitBreaker
	attempts uint
	logger   *zap.Logger
}

func NewReliability(next Invoker, attempts int, maxRequests uint32, interval, timeout time.Duration, onStateChange func(from, to gobreaker.State), logger *zap.Logger) *Reliability {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "copper-api",
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onStateChange != nil {
				onStateChange(from, to)
			}
		},
	})

	if attempts < 1 {
		attempts = 1
	}

	return &Reliability{
		next:     next,
		cb:       cb,
		attempts: uint(attempts),
		logger:   logger.Named("crm-reliability"),
	}
}

func (w *Reliability) Execute(ctx context.Context, op domain.Operation, entity domain.EntityType, entityID *int64, fields map[string]domain.FieldValue) (*domain.Record, error) {
	attempts := w.attempts
	retryIf := Retryable

	if op == domain.OpCreate {
		// Create в Copper неидемпотентен: повторный POST после сбоя с
		// неизвестным исходом рискует создать дубликат. Политика: не более
		// одного повтора, и только если запрос гарантированно не был отправлен.
		attempts = 2
		retryIf = func(err error) bool {
			var tErr *TransportError
			if errors.As(err, &tErr) {
				return !tErr.RequestSent
			}
			var rlErr *RateLimitedError
			return errors.As(err, &rlErr)
		}
	}

	var rec *domain.Record

	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.RetryIf(retryIf),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если Copper вернул 429 или лимитер отдал время ожидания — честно ждем его
				var rlErr *RateLimitedError
				if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
					return rlErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			rec, callErr = w.next.Execute(ctx, op, entity, entityID, fields)
			return callErr
		})

		return rec, retryErr
	})

	if err != nil {
		w.logger.Warn("crm call failed after retries",
			zap.String("operation", string(op)),
			zap.String("entity", string(entity)),
			zap.Error(err))
		return nil, err
	}

	return cbResult.(*domain.Record), nil
}

func (w *Reliability) Exists(ctx context.Context, entity domain.EntityType, entityID int64) (bool, error) {
	var found bool

	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.RetryIf(Retryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var rlErr *RateLimitedError
				if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
					return rlErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			found, callErr = w.next.Exists(ctx, entity, entityID)
			return callErr
		})

		return found, retryErr
	})

	if err != nil {
		return false, err
	}
	return cbResult.(bool), nil
}
