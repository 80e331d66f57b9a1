package workflow

import (
	"fmt"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// QuorumPolicy решает, набралось ли решение по накопленным голосам.
// Возвращает итоговый статус и settled=true, когда запись пора разрешать.
type QuorumPolicy interface {
	Settle(req *domain.PendingRequest) (domain.Status, bool)
}

const (
	QuorumFirst     = "first"
	QuorumUnanimous = "unanimous"
	QuorumMajority  = "majority"
)

// NewQuorumPolicy выбирает политику по имени из конфига.
// Дефолт "first": первый решающий голос закрывает запись.
func NewQuorumPolicy(mode string) (QuorumPolicy, error) {
	switch mode {
	case "", QuorumFirst:
		return firstWins{}, nil
	case QuorumUnanimous:
		return unanimous{}, nil
	case QuorumMajority:
		return majority{}, nil
	}
	return nil, fmt.Errorf("unknown quorum policy %q", mode)
}

// firstWins — один Approve переводит в APPROVED, один Reject в REJECTED.
// Это осознанное упрощение, не схема кворума.
type firstWins struct{}

func (firstWins) Settle(req *domain.PendingRequest) (domain.Status, bool) {
	for _, vote := range req.Decisions {
		if vote == domain.VoteApproved {
			return domain.StatusApproved, true
		}
		return domain.StatusRejected, true
	}
	return domain.StatusPending, false
}

// unanimous — любой Reject закрывает запись отказом; одобрение требует
// голосов всех согласующих из снимка.
type unanimous struct{}

func (unanimous) Settle(req *domain.PendingRequest) (domain.Status, bool) {
	approvals := 0
	for _, vote := range req.Decisions {
		if vote == domain.VoteRejected {
			return domain.StatusRejected, true
		}
		approvals++
	}
	if approvals == len(req.Approvers) && approvals > 0 {
		return domain.StatusApproved, true
	}
	return domain.StatusPending, false
}

// majority — строгое большинство от размера снимка в любую сторону
type majority struct{}

func (majority) Settle(req *domain.PendingRequest) (domain.Status, bool) {
	needed := len(req.Approvers)/2 + 1

	approvals, rejections := 0, 0
	for _, vote := range req.Decisions {
		if vote == domain.VoteApproved {
			approvals++
		} else {
			rejections++
		}
	}

	switch {
	case approvals >= needed:
		return domain.StatusApproved, true
	case rejections >= needed:
		return domain.StatusRejected, true
	}
	return domain.StatusPending, false
}
