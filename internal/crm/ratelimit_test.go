package crm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetFailMode(t *testing.T) {
	b := NewBudget(3, time.Minute, ModeFail)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	// Четвертый вызов в окне — отказ с временем ожидания
	err := b.Acquire(ctx)
	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestBudgetBlockModeRespectsContext(t *testing.T) {
	b := NewBudget(1, time.Hour, ModeBlock)
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx))

	// Бюджет исчерпан на час вперед: ждать нельзя, контекст с дедлайном
	timed, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(timed)
	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
}

func TestBudgetSharedAcrossCallers(t *testing.T) {
	b := NewBudget(2, time.Minute, ModeFail)
	ctx := context.Background()

	// Бюджет общий: два вызова из разных горутин съедают оба слота
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- b.Acquire(ctx) }()
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	err := b.Acquire(ctx)
	var rlErr *RateLimitedError
	assert.ErrorAs(t, err, &rlErr)
}
