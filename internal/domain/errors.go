package domain

import (
	"fmt"
	"strings"
)

// ValidationError — плохой или запрещенный ввод. Отклоняется до того,
// как будет создан PendingRequest и потревожен хоть один согласующий.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// NotFoundError — целевой сущности нет в CRM (pre-check для update/delete)
type NotFoundError struct {
	EntityType EntityType
	EntityID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found in CRM", e.EntityType, e.EntityID)
}

// AuthorizationError — нет согласующих, голос не-согласующего, замороженный инициатор
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "authorization denied: " + e.Reason
}
