package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы State Machine
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusExecuting Status = "EXECUTING" // Промежуточный маркер: решение принято, вызов CRM в полете
	StatusRejected  Status = "REJECTED"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
)

// Operation — тип мутации в CRM
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType — типы сущностей Copper
type EntityType string

const (
	EntityPerson      EntityType = "person"
	EntityCompany     EntityType = "company"
	EntityOpportunity EntityType = "opportunity"
	EntityLead        EntityType = "lead"
	EntityTask        EntityType = "task"
	EntityProject     EntityType = "project"
)

// ResourcePath маппит тип сущности на фиксированный путь REST-ресурса в API Copper
func (e EntityType) ResourcePath() string {
	switch e {
	case EntityPerson:
		return "people"
	case EntityCompany:
		return "companies"
	case EntityOpportunity:
		return "opportunities"
	case EntityLead:
		return "leads"
	case EntityTask:
		return "tasks"
	case EntityProject:
		return "projects"
	}
	return ""
}

// ParseOperation валидирует строку операции из нормализованного запроса
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpCreate, OpUpdate, OpDelete:
		return Operation(s), nil
	}
	return "", errors.New("unknown operation: " + s)
}

// ParseEntityType принимает канонические имена сущностей (единственное число)
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if e.ResourcePath() == "" {
		return "", errors.New("unknown entity type: " + s)
	}
	return e, nil
}

// Vote — решение конкретного согласующего
type Vote string

const (
	VoteApproved Vote = "APPROVED"
	VoteRejected Vote = "REJECTED"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrAlreadyResolved   = errors.New("request already resolved")
	ErrAlreadyVoted      = errors.New("approver already voted on this request")
	ErrNotFound          = errors.New("pending request not found")
	ErrConflict          = errors.New("concurrent transition conflict")
)

// PendingRequest — долговременная запись о предложенной мутации CRM.
// Снимок согласующих фиксируется при создании: последующие изменения
// реестра не влияют на запросы в полете.
type PendingRequest struct {
	ID          string                `json:"id"`
	Operation   Operation             `json:"operation"`
	EntityType  EntityType            `json:"entity_type"`
	EntityID    *int64                `json:"entity_id,omitempty"` // nil для create
	Fields      map[string]FieldValue `json:"fields"`
	RequesterID string                `json:"requester_id"`
	Status      Status                `json:"status"`

	Approvers []string        `json:"approvers"` // Снимок на момент создания
	Decisions map[string]Vote `json:"decisions"` // Накопленные голоса

	Comment        string `json:"comment,omitempty"`     // Комментарий решившего
	FailReason     string `json:"fail_reason,omitempty"` // Причина для FAILED
	UnknownOutcome bool   `json:"unknown_outcome"`       // Сбой между EXECUTING и финалом: исход вызова CRM неизвестен

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewPendingRequest создает запись в статусе PENDING с уникальным токеном.
// ID не переиспользуется после разрешения запроса.
func NewPendingRequest(requesterID string, op Operation, entity EntityType, entityID *int64, fields map[string]FieldValue, approvers []string) *PendingRequest {
	snapshot := make([]string, len(approvers))
	copy(snapshot, approvers)

	return &PendingRequest{
		ID:          uuid.New().String(),
		Operation:   op,
		EntityType:  entity,
		EntityID:    entityID,
		Fields:      fields,
		RequesterID: requesterID,
		Status:      StatusPending,
		Approvers:   snapshot,
		Decisions:   make(map[string]Vote),
		CreatedAt:   time.Now().UTC(),
	}
}

// HasApprover проверяет вхождение в снимок согласующих
func (r *PendingRequest) HasApprover(id string) bool {
	for _, a := range r.Approvers {
		if a == id {
			return true
		}
	}
	return false
}

// Terminal — запись больше не изменяется
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// CanTransitionTo проверяет правила конечного автомата
func (r *PendingRequest) CanTransitionTo(next Status) error {
	switch r.Status {
	case StatusPending:
		if next == StatusApproved || next == StatusRejected {
			return nil
		}
	case StatusApproved:
		if next == StatusExecuting {
			return nil
		}
	case StatusExecuting:
		if next == StatusExecuted || next == StatusFailed {
			return nil
		}
	default:
		return ErrAlreadyResolved
	}
	return ErrInvalidTransition
}

// Outcome — итог запроса, доставляемый инициатору через порт уведомлений
type Outcome struct {
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	RecordID int64  `json:"record_id,omitempty"` // ID созданной/обновленной записи CRM
}

// Record — запись CRM, возвращаемая после успешной операции
type Record struct {
	ID   int64                  `json:"id"`
	Name string                 `json:"name,omitempty"`
	Raw  map[string]interface{} `json:"-"` // Полный ответ API для аудита
}
