package workflow

import (
	"context"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// Store описывает требования движка к хранилищу PendingRequest.
// Переходы статусов — CAS-операции: стор обязан проверять исходный статус
// атомарно и возвращать domain.ErrAlreadyResolved / domain.ErrConflict,
// если запись успела уйти из него.
type Store interface {
	Create(ctx context.Context, req *domain.PendingRequest) error
	Get(ctx context.Context, id string) (*domain.PendingRequest, error)

	// PendingFor — записи в PENDING, где approverID входит в снимок,
	// в порядке createdAt по возрастанию
	PendingFor(ctx context.Context, approverID string) ([]*domain.PendingRequest, error)

	// ListByStatus используется проходом восстановления при старте
	ListByStatus(ctx context.Context, status domain.Status) ([]*domain.PendingRequest, error)

	// SaveDecision дописывает голос, пока запись в PENDING
	SaveDecision(ctx context.Context, id, approverID string, vote domain.Vote) error

	// Resolve: PENDING -> APPROVED | REJECTED
	Resolve(ctx context.Context, id string, to domain.Status, comment string) error

	// MarkExecuting: APPROVED -> EXECUTING (маркер ставится до сетевого вызова)
	MarkExecuting(ctx context.Context, id string) error

	// Finalize: EXECUTING -> EXECUTED | FAILED
	Finalize(ctx context.Context, id string, to domain.Status, failReason string, unknownOutcome bool) error
}
