package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// MemoryStore — хранилище в RAM для режима database.driver=memory и тестов.
// Контракт CAS тот же, что у Postgres-реализации: переходы проверяют
// исходный статус под общим мьютексом.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]*domain.PendingRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]*domain.PendingRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *domain.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reqs[req.ID]; ok {
		return domain.ErrConflict
	}
	s.reqs[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.reqs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *MemoryStore) PendingFor(_ context.Context, approverID string) ([]*domain.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PendingRequest
	for _, req := range s.reqs {
		if req.Status == domain.StatusPending && req.HasApprover(approverID) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status domain.Status) ([]*domain.PendingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PendingRequest
	for _, req := range s.reqs {
		if req.Status == status {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveDecision(_ context.Context, id, approverID string, vote domain.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusPending {
		return domain.ErrAlreadyResolved
	}
	req.Decisions[approverID] = vote
	return nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, to domain.Status, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusPending {
		return domain.ErrAlreadyResolved
	}
	if err := req.CanTransitionTo(to); err != nil {
		return err
	}
	now := time.Now().UTC()
	req.Status = to
	req.Comment = comment
	req.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) MarkExecuting(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusApproved {
		return domain.ErrConflict
	}
	req.Status = domain.StatusExecuting
	return nil
}

func (s *MemoryStore) Finalize(_ context.Context, id string, to domain.Status, failReason string, unknownOutcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusExecuting {
		return domain.ErrConflict
	}
	if err := req.CanTransitionTo(to); err != nil {
		return err
	}
	req.Status = to
	req.FailReason = failReason
	req.UnknownOutcome = unknownOutcome
	return nil
}

// cloneRequest отдает копию: вызывающий не может испортить состояние стора
// мутацией возвращенной структуры.
func cloneRequest(req *domain.PendingRequest) *domain.PendingRequest {
	cp := *req

	cp.Approvers = make([]string, len(req.Approvers))
	copy(cp.Approvers, req.Approvers)

	cp.Decisions = make(map[string]domain.Vote, len(req.Decisions))
	for k, v := range req.Decisions {
		cp.Decisions[k] = v
	}

	cp.Fields = make(map[string]domain.FieldValue, len(req.Fields))
	for k, v := range req.Fields {
		cp.Fields[k] = v
	}

	if req.EntityID != nil {
		id := *req.EntityID
		cp.EntityID = &id
	}
	if req.ResolvedAt != nil {
		t := *req.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
