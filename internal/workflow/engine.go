package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/xela07ax/crm-approval-gateway/internal/crm"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

/*
Файл engine.go реализует движок согласования (Human-in-the-loop):
создание записей PendingRequest, прием решений согласующих, исполнение
одобренных мутаций через клиента CRM и доставку итогов инициатору.

Гарантии:
- решения по одной записи сериализованы (per-record lock + CAS в сторе);
- Approved-запись либо доходит до EXECUTED/FAILED, либо подхватывается
  проходом восстановления после рестарта — записей в лимбе не остается;
- сетевой вызов CRM выполняется ВНЕ критической секции: под замком
  ставится только маркер EXECUTING, что исключает двойное исполнение.
*/

// Notifier — порт уведомлений. Fire-and-forget: движок не зависит от
// успешности доставки, сбои только логируются на стороне реализации.
type Notifier interface {
	NotifyApprovers(req *domain.PendingRequest)
	NotifyOutcome(req *domain.PendingRequest, out domain.Outcome)
}

type Engine struct {
	store    Store
	crm      crm.Invoker
	notifier Notifier
	quorum   QuorumPolicy
	locks    *keyedLocks
	logger   *zap.Logger
}

func NewEngine(store Store, invoker crm.Invoker, notifier Notifier, quorum QuorumPolicy, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		crm:      invoker,
		notifier: notifier,
		quorum:   quorum,
		locks:    newKeyedLocks(),
		logger:   logger.Named("workflow"),
	}
}

// Create персистит новую запись в PENDING и рассылает подсказки
// согласующим. Возвращает id сразу, не дожидаясь доставки уведомлений.
func (e *Engine) Create(ctx context.Context, req *domain.PendingRequest) (string, error) {
	if err := e.store.Create(ctx, req); err != nil {
		return "", err
	}

	e.logger.Info("pending request created",
		zap.String("request_id", req.ID),
		zap.String("operation", string(req.Operation)),
		zap.String("entity", string(req.EntityType)),
		zap.String("requester", req.RequesterID),
		zap.Int("approvers", len(req.Approvers)))

	e.notifier.NotifyApprovers(req)
	return req.ID, nil
}

// Decide принимает голос согласующего и, если кворум набран, разрешает
// запись. Повторное решение по разрешенной записи возвращает
// ErrAlreadyResolved, а не молча игнорируется: опоздавший должен узнать,
// что его голос не был учтен.
func (e *Engine) Decide(ctx context.Context, requestID, approverID string, approve bool, comment string) (*domain.PendingRequest, error) {
	vote := domain.VoteRejected
	if approve {
		vote = domain.VoteApproved
	}

	unlock := e.locks.Acquire(requestID)

	req, err := e.store.Get(ctx, requestID)
	if err != nil {
		unlock()
		return nil, err
	}
	if req.Status != domain.StatusPending {
		unlock()
		return nil, domain.ErrAlreadyResolved
	}
	if !req.HasApprover(approverID) {
		unlock()
		return nil, &domain.AuthorizationError{Reason: "user " + approverID + " is not an approver of this request"}
	}
	if _, voted := req.Decisions[approverID]; voted {
		unlock()
		return nil, domain.ErrAlreadyVoted
	}

	if err := e.store.SaveDecision(ctx, requestID, approverID, vote); err != nil {
		unlock()
		return nil, err
	}
	req.Decisions[approverID] = vote

	verdict, settled := e.quorum.Settle(req)
	if !settled {
		unlock()
		e.logger.Info("vote recorded, quorum not reached",
			zap.String("request_id", requestID),
			zap.String("approver", approverID),
			zap.String("vote", string(vote)))
		return req, nil
	}

	if err := e.store.Resolve(ctx, requestID, verdict, comment); err != nil {
		unlock()
		return nil, err
	}
	now := time.Now().UTC()
	req.Status = verdict
	req.Comment = comment
	req.ResolvedAt = &now

	e.logger.Info("request resolved",
		zap.String("request_id", requestID),
		zap.String("approver", approverID),
		zap.String("verdict", string(verdict)))

	if verdict == domain.StatusRejected {
		unlock()
		e.notifier.NotifyOutcome(req, domain.Outcome{Status: domain.StatusRejected, Reason: comment})
		return req, nil
	}

	// APPROVED: ставим маркер EXECUTING под замком, сеть — после освобождения.
	// Рестарт между этими шагами разрулит проход восстановления.
	if err := e.store.MarkExecuting(ctx, requestID); err != nil {
		unlock()
		return nil, err
	}
	req.Status = domain.StatusExecuting
	unlock()

	// Исполнение отвязано от контекста согласующего: обрыв его HTTP-запроса
	// не должен прерывать уже одобренную мутацию
	e.execute(context.WithoutCancel(ctx), req)
	return req, nil
}

// Pending возвращает очередь PENDING-записей согласующего, старые первыми
func (e *Engine) Pending(ctx context.Context, approverID string) ([]*domain.PendingRequest, error) {
	return e.store.PendingFor(ctx, approverID)
}

// Get — детали записи для просмотра перед решением
func (e *Engine) Get(ctx context.Context, requestID string) (*domain.PendingRequest, error) {
	return e.store.Get(ctx, requestID)
}

// execute доводит EXECUTING-запись до терминального статуса.
// Ретраи и бэкофф живут внутри клиента CRM; все, что вышло оттуда
// с ошибкой, — терминально для записи.
func (e *Engine) execute(ctx context.Context, req *domain.PendingRequest) {
	rec, err := e.crm.Execute(ctx, req.Operation, req.EntityType, req.EntityID, req.Fields)
	if err != nil {
		// Create без идемпотентности: если POST уже ушел в сеть, Copper мог
		// успеть завести запись — фиксируем неизвестный исход, чтобы инициатор
		// не пересоздал ее вслепую
		unknown := false
		var tErr *crm.TransportError
		if req.Operation == domain.OpCreate && errors.As(err, &tErr) && tErr.RequestSent {
			unknown = true
		}

		// Исходный пейлоад сохранен в записи: оператор увидит, что именно не прошло
		if ferr := e.store.Finalize(ctx, req.ID, domain.StatusFailed, err.Error(), unknown); ferr != nil {
			e.logger.Error("failed to finalize request", zap.String("request_id", req.ID), zap.Error(ferr))
		}
		req.Status = domain.StatusFailed
		req.FailReason = err.Error()
		req.UnknownOutcome = unknown

		e.logger.Warn("approved request failed at CRM",
			zap.String("request_id", req.ID),
			zap.Bool("unknown_outcome", unknown),
			zap.Error(err))

		e.notifier.NotifyOutcome(req, domain.Outcome{Status: domain.StatusFailed, Reason: err.Error()})
		return
	}

	if ferr := e.store.Finalize(ctx, req.ID, domain.StatusExecuted, "", false); ferr != nil {
		e.logger.Error("failed to finalize request", zap.String("request_id", req.ID), zap.Error(ferr))
	}
	req.Status = domain.StatusExecuted

	e.logger.Info("approved request executed",
		zap.String("request_id", req.ID),
		zap.Int64("record_id", rec.ID))

	e.notifier.NotifyOutcome(req, domain.Outcome{Status: domain.StatusExecuted, RecordID: rec.ID})
}

// Recover — обязательный проход при старте процесса.
// EXECUTING-записи — сбой случился во время вызова CRM, исход неизвестен
// (вызов мог частично пройти): помечаем FAILED с явным флагом.
// APPROVED-записи — решение принято, исполнение не стартовало: доводим.
func (e *Engine) Recover(ctx context.Context) error {
	stuck, err := e.store.ListByStatus(ctx, domain.StatusExecuting)
	if err != nil {
		return err
	}
	for _, req := range stuck {
		reason := "crashed during CRM call, outcome unknown"
		if err := e.store.Finalize(ctx, req.ID, domain.StatusFailed, reason, true); err != nil {
			e.logger.Error("recovery: failed to finalize stuck request",
				zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		req.Status = domain.StatusFailed
		req.FailReason = reason
		req.UnknownOutcome = true

		e.logger.Warn("recovery: request marked failed with unknown outcome",
			zap.String("request_id", req.ID))
		e.notifier.NotifyOutcome(req, domain.Outcome{Status: domain.StatusFailed, Reason: reason})
	}

	approved, err := e.store.ListByStatus(ctx, domain.StatusApproved)
	if err != nil {
		return err
	}
	for _, req := range approved {
		if err := e.store.MarkExecuting(ctx, req.ID); err != nil {
			e.logger.Error("recovery: failed to mark request executing",
				zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		req.Status = domain.StatusExecuting

		e.logger.Info("recovery: resuming approved request", zap.String("request_id", req.ID))
		e.execute(ctx, req)
	}

	return nil
}
