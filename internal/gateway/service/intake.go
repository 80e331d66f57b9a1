package service

/*
Файл intake.go — точка входа мутаций CRM в шлюз.

Порядок проверок фиксированный: заморозка -> парсинг -> allowlist полей ->
существование записи (для update/delete) -> авторизация. Только прошедший
все барьеры запрос либо исполняется напрямую (админ), либо встает в
очередь согласования.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/crm-approval-gateway/internal/audit"
	"github.com/xela07ax/crm-approval-gateway/internal/crm"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"github.com/xela07ax/crm-approval-gateway/internal/policy"
	"github.com/xela07ax/crm-approval-gateway/internal/validate"
	"github.com/xela07ax/crm-approval-gateway/internal/workflow"
	"go.uber.org/zap"
)

// FreezeChecker — проверка стоп-крана по инициатору (Hot Path, только RAM)
type FreezeChecker interface {
	IsFrozen(requesterID string) bool
}

// SubmitCommand — нормализованный запрос на запись из чат-транспорта
type SubmitCommand struct {
	RequesterID string            `json:"requester_id"`
	Operation   string            `json:"operation"`
	EntityType  string            `json:"entity_type"`
	EntityID    *int64            `json:"entity_id,omitempty"`
	Fields      map[string]string `json:"fields"`
}

// SubmitOutcome — немедленный ответ инициатору
type SubmitOutcome struct {
	Mode      audit.Mode     `json:"mode"`
	Status    domain.Status  `json:"status,omitempty"`
	RequestID string         `json:"request_id,omitempty"` // Для WORKFLOW
	Record    *domain.Record `json:"record,omitempty"`     // Для DIRECT
}

type IntakeService struct {
	registry   *policy.Registry
	authorizer *policy.Authorizer
	freeze     FreezeChecker
	engine     *workflow.Engine
	crm        crm.Invoker
	auditor    audit.Auditor
	metrics    *infra.Metrics
	logger     *zap.Logger
}

func NewIntakeService(
	registry *policy.Registry,
	authorizer *policy.Authorizer,
	freeze FreezeChecker,
	engine *workflow.Engine,
	invoker crm.Invoker,
	auditor audit.Auditor,
	metrics *infra.Metrics,
	logger *zap.Logger,
) *IntakeService {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &IntakeService{
		registry:   registry,
		authorizer: authorizer,
		freeze:     freeze,
		engine:     engine,
		crm:        invoker,
		auditor:    auditor,
		metrics:    metrics,
		logger:     logger.Named("intake"),
	}
}

// Submit проводит запрос через все барьеры шлюза
func (s *IntakeService) Submit(ctx context.Context, traceID string, cmd SubmitCommand) (*SubmitOutcome, error) {
	started := time.Now()

	if s.freeze.IsFrozen(cmd.RequesterID) {
		s.metrics.ErrorTotal.WithLabelValues("frozen").Inc()
		return nil, &domain.AuthorizationError{Reason: "requester is frozen"}
	}

	op, err := domain.ParseOperation(cmd.Operation)
	if err != nil {
		s.metrics.ErrorTotal.WithLabelValues("validation").Inc()
		return nil, &domain.ValidationError{Problems: []string{err.Error()}}
	}
	entity, err := domain.ParseEntityType(cmd.EntityType)
	if err != nil {
		s.metrics.ErrorTotal.WithLabelValues("validation").Inc()
		return nil, &domain.ValidationError{Problems: []string{err.Error()}}
	}
	s.metrics.TotalRequests.WithLabelValues(string(op), string(entity)).Inc()

	fields, err := validate.Sanitize(entity, op, cmd.Fields)
	if err != nil {
		s.metrics.ErrorTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	// update/delete без ID бессмысленны; существование проверяем ДО того,
	// как запрос попадет к согласующим — иначе человек потратит решение
	// на заведомо мертвую операцию
	if op != domain.OpCreate {
		if cmd.EntityID == nil {
			return nil, &domain.ValidationError{Problems: []string{fmt.Sprintf("%s requires entity_id", op)}}
		}
		exists, err := s.crm.Exists(ctx, entity, *cmd.EntityID)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.metrics.ErrorTotal.WithLabelValues("not_found").Inc()
			return nil, &domain.NotFoundError{EntityType: entity, EntityID: *cmd.EntityID}
		}
	}

	// Атрибуция: если чат-идентичность замаплена на пользователя CRM,
	// подставляем его как ответственного, не перебивая явного значения
	if op == domain.OpCreate {
		if crmUserID, ok := s.registry.CRMUser(cmd.RequesterID); ok {
			if _, set := fields["assignee_id"]; !set && validate.Allows(entity, "assignee_id") {
				fields["assignee_id"] = domain.NumberValue(float64(crmUserID))
			}
		}
	}

	decision := s.authorizer.Authorize(cmd.RequesterID, op, entity)
	switch decision.Verdict {
	case policy.VerdictAutoExecute:
		return s.executeDirect(ctx, traceID, cmd.RequesterID, op, entity, cmd.EntityID, fields, started)

	case policy.VerdictRequireApproval:
		req := domain.NewPendingRequest(cmd.RequesterID, op, entity, cmd.EntityID, fields, decision.Approvers)
		if _, err := s.engine.Create(ctx, req); err != nil {
			return nil, err
		}
		s.logAudit(traceID, cmd.RequesterID, op, entity, cmd.EntityID, fields,
			audit.ModeWorkflow, string(domain.StatusPending), "", req.ID, started)
		s.metrics.RequestDuration.WithLabelValues(string(op), string(entity), string(domain.StatusPending)).
			Observe(time.Since(started).Seconds())
		return &SubmitOutcome{Mode: audit.ModeWorkflow, Status: domain.StatusPending, RequestID: req.ID}, nil

	default:
		s.metrics.ErrorTotal.WithLabelValues("denied").Inc()
		s.logAudit(traceID, cmd.RequesterID, op, entity, cmd.EntityID, fields,
			audit.ModeDirect, "DENIED", decision.Reason, "", started)
		return nil, &domain.AuthorizationError{Reason: decision.Reason}
	}
}

// executeDirect — админский обход согласования, вызов CRM синхронный
func (s *IntakeService) executeDirect(
	ctx context.Context,
	traceID, requesterID string,
	op domain.Operation,
	entity domain.EntityType,
	entityID *int64,
	fields map[string]domain.FieldValue,
	started time.Time,
) (*SubmitOutcome, error) {
	rec, err := s.crm.Execute(ctx, op, entity, entityID, fields)
	if err != nil {
		errType := "crm_error"
		var rlErr *crm.RateLimitedError
		if errors.As(err, &rlErr) {
			errType = "rate_limit"
		}
		s.metrics.ErrorTotal.WithLabelValues(errType).Inc()
		s.metrics.RequestDuration.WithLabelValues(string(op), string(entity), string(domain.StatusFailed)).
			Observe(time.Since(started).Seconds())
		s.logAudit(traceID, requesterID, op, entity, entityID, fields,
			audit.ModeDirect, string(domain.StatusFailed), err.Error(), "", started)
		return nil, err
	}

	s.metrics.RequestDuration.WithLabelValues(string(op), string(entity), string(domain.StatusExecuted)).
		Observe(time.Since(started).Seconds())
	s.logAudit(traceID, requesterID, op, entity, entityID, fields,
		audit.ModeDirect, string(domain.StatusExecuted), "", "", started)

	s.logger.Info("direct execution completed",
		zap.String("requester", requesterID),
		zap.String("operation", string(op)),
		zap.String("entity", string(entity)),
		zap.Int64("record_id", rec.ID))

	return &SubmitOutcome{Mode: audit.ModeDirect, Status: domain.StatusExecuted, Record: rec}, nil
}

func (s *IntakeService) logAudit(
	traceID, requesterID string,
	op domain.Operation,
	entity domain.EntityType,
	entityID *int64,
	fields map[string]domain.FieldValue,
	mode audit.Mode,
	status, errMsg, requestID string,
	started time.Time,
) {
	payload, _ := json.Marshal(fields)

	s.auditor.Log(audit.Event{
		ID:          uuid.New().String(),
		TraceID:     traceID,
		RequesterID: requesterID,
		Operation:   string(op),
		EntityType:  string(entity),
		EntityID:    entityID,
		Payload:     payload,
		Mode:        mode,
		Status:      status,
		Error:       errMsg,
		RequestID:   requestID,
		DurationMs:  time.Since(started).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	})
}
