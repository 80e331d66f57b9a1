package crm

import (
	"context"
	"errors"

	"time"

	"golang.org/x/time/rate"
)

// BudgetMode — поведение при исчерпании бюджета
type BudgetMode string

const (
	// ModeFail — вернуть RateLimitedError с оставшимся временем ожидания
	ModeFail BudgetMode = "fail"
	// ModeBlock — блокировать вызывающего до освобождения слота
	ModeBlock BudgetMode = "block"
)

// Budget — общий счетчик вызовов Copper (180 req/min на весь токен).
// rate.Limiter внутри потокобезопасен: конкурентные исполнители делят
// один бюджет и коллективно не превышают лимит.
type Budget struct {
	limiter *rate.Limiter
	mode    BudgetMode
}

// NewBudget настраивает бюджет: requests слотов на окно window.
// Burst равен полному окну — первые requests вызовов проходят мгновенно.
func NewBudget(requests int, window time.Duration, mode BudgetMode) *Budget {
	if requests <= 0 {
		requests = 180
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Budget{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
		mode:    mode,
	}
}

// Acquire занимает один слот бюджета перед вызовом API.
func (b *Budget) Acquire(ctx context.Context) error {
	if b.mode == ModeBlock {
		if err := b.limiter.Wait(ctx); err != nil {
			return &RateLimitedError{Cause: err}
		}
		return nil
	}

	r := b.limiter.Reserve()
	if !r.OK() {
		return &RateLimitedError{Cause: errors.New("budget unavailable")}
	}
	delay := r.Delay()
	if delay > 0 {
		// Слот есть только в будущем — отменяем бронь и отдаем время ожидания
		r.Cancel()
		return &RateLimitedError{RetryAfter: delay, Cause: errors.New("request budget exhausted")}
	}
	return nil
}
