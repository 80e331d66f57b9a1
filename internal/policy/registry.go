package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store описывает требования реестров к долговременному хранилищу.
// Никаких ambient-синглтонов: стор инжектится при сборке.
type Store interface {
	LoadApprovers(ctx context.Context) ([]string, error)
	LoadAdmins(ctx context.Context) ([]string, error)
	LoadMappings(ctx context.Context) (map[string]int64, error)
	AddApprover(ctx context.Context, userID string) error
	RemoveApprover(ctx context.Context, userID string) error
	AddAdmin(ctx context.Context, userID string) error
	RemoveAdmin(ctx context.Context, userID string) error
	SetMapping(ctx context.Context, chatID string, crmUserID int64) error
}

// Registry — реестры согласующих/админов и маппинг чат-идентичностей на
// пользователей CRM. Читается из памяти (Hot Path), мутации идут через
// общий замок с записью в стор ДО возврата успеха.
type Registry struct {
	mu        sync.RWMutex
	approvers map[string]struct{}
	admins    map[string]struct{}
	mappings  map[string]int64

	store  Store
	logger *zap.Logger
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		approvers: make(map[string]struct{}),
		admins:    make(map[string]struct{}),
		mappings:  make(map[string]int64),
		store:     store,
		logger:    logger.Named("registry"),
	}
}

// Refresh выполняет холодную загрузку всех реестров при старте процесса
func (r *Registry) Refresh(ctx context.Context) error {
	approvers, err := r.store.LoadApprovers(ctx)
	if err != nil {
		return fmt.Errorf("registry: failed to load approvers: %w", err)
	}
	admins, err := r.store.LoadAdmins(ctx)
	if err != nil {
		return fmt.Errorf("registry: failed to load admins: %w", err)
	}
	mappings, err := r.store.LoadMappings(ctx)
	if err != nil {
		return fmt.Errorf("registry: failed to load user mappings: %w", err)
	}

	r.mu.Lock()
	r.approvers = make(map[string]struct{}, len(approvers))
	for _, id := range approvers {
		r.approvers[id] = struct{}{}
	}
	r.admins = make(map[string]struct{}, len(admins))
	for _, id := range admins {
		r.admins[id] = struct{}{}
	}
	r.mappings = mappings
	r.mu.Unlock()

	r.logger.Info("registries refreshed",
		zap.Int("approvers", len(approvers)),
		zap.Int("admins", len(admins)),
		zap.Int("mappings", len(mappings)))
	return nil
}

// AddApprover: сначала durable-запись, потом кэш. Если стор упал —
// вызывающий не получит успеха и кэш не разъедется с базой.
func (r *Registry) AddApprover(ctx context.Context, userID string) error {
	if err := r.store.AddApprover(ctx, userID); err != nil {
		return err
	}
	r.mu.Lock()
	r.approvers[userID] = struct{}{}
	r.mu.Unlock()
	r.logger.Info("approver added", zap.String("user_id", userID))
	return nil
}

func (r *Registry) RemoveApprover(ctx context.Context, userID string) error {
	if err := r.store.RemoveApprover(ctx, userID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.approvers, userID)
	r.mu.Unlock()
	r.logger.Info("approver removed", zap.String("user_id", userID))
	return nil
}

func (r *Registry) AddAdmin(ctx context.Context, userID string) error {
	if err := r.store.AddAdmin(ctx, userID); err != nil {
		return err
	}
	r.mu.Lock()
	r.admins[userID] = struct{}{}
	r.mu.Unlock()
	r.logger.Info("admin added", zap.String("user_id", userID))
	return nil
}

func (r *Registry) RemoveAdmin(ctx context.Context, userID string) error {
	if err := r.store.RemoveAdmin(ctx, userID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.admins, userID)
	r.mu.Unlock()
	r.logger.Info("admin removed", zap.String("user_id", userID))
	return nil
}

// SetMapping связывает чат-идентичность с пользователем CRM (атрибуция
// создаваемых записей и назначение задач)
func (r *Registry) SetMapping(ctx context.Context, chatID string, crmUserID int64) error {
	if err := r.store.SetMapping(ctx, chatID, crmUserID); err != nil {
		return err
	}
	r.mu.Lock()
	r.mappings[chatID] = crmUserID
	r.mu.Unlock()
	r.logger.Info("user mapping set", zap.String("chat_id", chatID), zap.Int64("crm_user_id", crmUserID))
	return nil
}

func (r *Registry) IsAdmin(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[userID]
	return ok
}

func (r *Registry) IsApprover(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.approvers[userID]
	return ok
}

// Approvers возвращает отсортированную копию текущего набора согласующих.
// Копия — чтобы снимок в PendingRequest не менялся вслед за реестром.
func (r *Registry) Approvers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.approvers))
	for id := range r.approvers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CRMUser возвращает пользователя CRM для чат-идентичности
func (r *Registry) CRMUser(chatID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.mappings[chatID]
	return id, ok
}
