package policy

import (
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// Verdict — исход авторизации запроса на запись
type Verdict int

const (
	// VerdictAutoExecute — админ, исполняем напрямую без согласования
	VerdictAutoExecute Verdict = iota
	// VerdictRequireApproval — обычный пользователь, нужен человек в контуре
	VerdictRequireApproval
	// VerdictDenied — исполнять нельзя и согласовать некому
	VerdictDenied
)

type Decision struct {
	Verdict   Verdict
	Approvers []string // Снимок набора согласующих на момент решения
	Reason    string   // Заполнен для Denied
}

// Authorizer решает судьбу запроса по ролям. Функция чистая относительно
// текущего содержимого реестров: никаких побочных эффектов, ни одного
// обращения к CRM.
type Authorizer struct {
	reg *Registry
}

func NewAuthorizer(reg *Registry) *Authorizer {
	return &Authorizer{reg: reg}
}

func (a *Authorizer) Authorize(requesterID string, op domain.Operation, entity domain.EntityType) Decision {
	// Админ обходит согласование целиком, независимо от набора согласующих
	if a.reg.IsAdmin(requesterID) {
		return Decision{Verdict: VerdictAutoExecute}
	}

	// Снимок фиксируется здесь: последующие изменения реестра не влияют
	// на запросы в полете
	approvers := a.reg.Approvers()
	if len(approvers) > 0 {
		return Decision{Verdict: VerdictRequireApproval, Approvers: approvers}
	}

	// Default Deny: молча пропускать запись, когда согласовать некому, нельзя
	return Decision{Verdict: VerdictDenied, Reason: "no approvers configured"}
}
