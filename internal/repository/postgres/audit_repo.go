package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/crm-approval-gateway/internal/audit"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch — пакетная вставка событий Audit Trail одним запросом
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 13
	placeholders := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13))

		vals = append(vals,
			e.ID, e.TraceID, e.RequesterID, e.Operation, e.EntityType, e.EntityID,
			e.Payload, e.Mode, e.Status, e.Error, e.RequestID, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_logs (id, trace_id, requester_id, operation, entity_type, entity_id,
			payload, mode, status, error, request_id, duration_ms, timestamp) VALUES %s`,
		strings.Join(placeholders, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}
