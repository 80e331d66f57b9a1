package policy

import (
	"context"
	"sync"
)

// MemoryStore — стор реестров в RAM для режима database.driver=memory
// и тестов. Содержимое живет до рестарта процесса.
type MemoryStore struct {
	mu        sync.Mutex
	approvers map[string]struct{}
	admins    map[string]struct{}
	mappings  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		approvers: make(map[string]struct{}),
		admins:    make(map[string]struct{}),
		mappings:  make(map[string]int64),
	}
}

func (s *MemoryStore) LoadApprovers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.approvers), nil
}

func (s *MemoryStore) LoadAdmins(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.admins), nil
}

func (s *MemoryStore) LoadMappings(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.mappings))
	for k, v := range s.mappings {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) AddApprover(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvers[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveApprover(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.approvers, userID)
	return nil
}

func (s *MemoryStore) AddAdmin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveAdmin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, userID)
	return nil
}

func (s *MemoryStore) SetMapping(_ context.Context, chatID string, crmUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[chatID] = crmUserID
	return nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
