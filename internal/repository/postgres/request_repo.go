package postgres

/*
Файл request_repo.go — персистентность записей PendingRequest (Human-in-the-loop).

Все переходы статусов выполнены как CAS: UPDATE с условием WHERE status = '...'
предотвращает Double Decision и двойное исполнение при гонке двух инстансов.
Количество затронутых строк — единственный источник истины об успехе перехода.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, operation, entity_type, entity_id, fields, requester_id, status,
	approvers, decisions, comment, fail_reason, unknown_outcome, created_at, resolved_at`

func (r *RequestRepo) Create(ctx context.Context, req *domain.PendingRequest) error {
	fields, err := json.Marshal(req.Fields)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal fields: %w", err)
	}
	approvers, _ := json.Marshal(req.Approvers)
	decisions, _ := json.Marshal(req.Decisions)

	query := `INSERT INTO pending_requests
		(id, operation, entity_type, entity_id, fields, requester_id, status, approvers, decisions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		req.ID, req.Operation, req.EntityType, req.EntityID, fields,
		req.RequesterID, req.Status, approvers, decisions, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create pending request: %w", err)
	}
	return nil
}

func (r *RequestRepo) Get(ctx context.Context, id string) (*domain.PendingRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM pending_requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get pending request: %w", err)
	}
	return req, nil
}

// PendingFor — очередь согласующего: PENDING-записи, где он входит в снимок.
// Снимок лежит в jsonb, вхождение проверяет оператор @>.
func (r *RequestRepo) PendingFor(ctx context.Context, approverID string) ([]*domain.PendingRequest, error) {
	member, _ := json.Marshal([]string{approverID})

	query := `SELECT ` + requestColumns + ` FROM pending_requests
		WHERE status = 'PENDING' AND approvers @> $1
		ORDER BY created_at ASC`

	return r.queryRequests(ctx, query, member)
}

func (r *RequestRepo) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.PendingRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM pending_requests
		WHERE status = $1 ORDER BY created_at ASC`

	return r.queryRequests(ctx, query, status)
}

// SaveDecision дописывает голос в jsonb-карту решений, пока запись в PENDING
func (r *RequestRepo) SaveDecision(ctx context.Context, id, approverID string, vote domain.Vote) error {
	patch, _ := json.Marshal(map[string]domain.Vote{approverID: vote})

	query := `UPDATE pending_requests
		SET decisions = decisions || $1::jsonb
		WHERE id = $2 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, patch, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to save decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо ID неверный, либо запись успела разрешиться на другом инстансе
		return domain.ErrAlreadyResolved
	}
	return nil
}

// Resolve: PENDING -> APPROVED | REJECTED.
// Условие по исходному статусу исключает Double Decision без SELECT FOR UPDATE.
func (r *RequestRepo) Resolve(ctx context.Context, id string, to domain.Status, comment string) error {
	query := `UPDATE pending_requests
		SET status = $1, comment = $2, resolved_at = $3
		WHERE id = $4 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, to, comment, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to resolve request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyResolved
	}
	return nil
}

// MarkExecuting: APPROVED -> EXECUTING (маркер ставится до сетевого вызова)
func (r *RequestRepo) MarkExecuting(ctx context.Context, id string) error {
	query := `UPDATE pending_requests SET status = 'EXECUTING'
		WHERE id = $1 AND status = 'APPROVED'`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark request executing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// Finalize: EXECUTING -> EXECUTED | FAILED
func (r *RequestRepo) Finalize(ctx context.Context, id string, to domain.Status, failReason string, unknownOutcome bool) error {
	query := `UPDATE pending_requests
		SET status = $1, fail_reason = $2, unknown_outcome = $3
		WHERE id = $4 AND status = 'EXECUTING'`

	tag, err := r.pool.Exec(ctx, query, to, failReason, unknownOutcome, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to finalize request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *RequestRepo) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*domain.PendingRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.PendingRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		results = append(results, req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func scanRequest(row pgx.Row) (*domain.PendingRequest, error) {
	var (
		req                          domain.PendingRequest
		fields, approvers, decisions []byte
		comment, failReason          *string
	)

	err := row.Scan(
		&req.ID, &req.Operation, &req.EntityType, &req.EntityID, &fields,
		&req.RequesterID, &req.Status, &approvers, &decisions,
		&comment, &failReason, &req.UnknownOutcome, &req.CreatedAt, &req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fields, &req.Fields); err != nil {
		return nil, fmt.Errorf("corrupt fields payload: %w", err)
	}
	if err := json.Unmarshal(approvers, &req.Approvers); err != nil {
		return nil, fmt.Errorf("corrupt approvers snapshot: %w", err)
	}
	if err := json.Unmarshal(decisions, &req.Decisions); err != nil {
		return nil, fmt.Errorf("corrupt decisions map: %w", err)
	}

	if comment != nil {
		req.Comment = *comment
	}
	if failReason != nil {
		req.FailReason = *failReason
	}
	return &req, nil
}
