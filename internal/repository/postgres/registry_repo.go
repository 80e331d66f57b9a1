package postgres

/*
Файл registry_repo.go — долговременное хранилище реестров ролей и
маппинга чат-идентичностей на пользователей CRM. Таблицы примитивные
(по сути durable-множества), вся логика доступа живет в policy.Registry.
*/

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RegistryRepo struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) *RegistryRepo {
	return &RegistryRepo{pool: pool}
}

func (r *RegistryRepo) LoadApprovers(ctx context.Context) ([]string, error) {
	return r.loadIDs(ctx, `SELECT user_id FROM approvers ORDER BY user_id`)
}

func (r *RegistryRepo) LoadAdmins(ctx context.Context) ([]string, error) {
	return r.loadIDs(ctx, `SELECT user_id FROM admins ORDER BY user_id`)
}

func (r *RegistryRepo) LoadMappings(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id, crm_user_id FROM user_mappings`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch user mappings: %w", err)
	}
	defer rows.Close()

	mappings := make(map[string]int64)
	for rows.Next() {
		var chatID string
		var crmUserID int64
		if err := rows.Scan(&chatID, &crmUserID); err != nil {
			return nil, fmt.Errorf("postgres: scan mapping error: %w", err)
		}
		mappings[chatID] = crmUserID
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return mappings, nil
}

// AddApprover идемпотентен: повторное добавление не ошибка
func (r *RegistryRepo) AddApprover(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO approvers (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to add approver: %w", err)
	}
	return nil
}

func (r *RegistryRepo) RemoveApprover(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM approvers WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to remove approver: %w", err)
	}
	return nil
}

func (r *RegistryRepo) AddAdmin(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to add admin: %w", err)
	}
	return nil
}

func (r *RegistryRepo) RemoveAdmin(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to remove admin: %w", err)
	}
	return nil
}

// SetMapping перезаписывает связь: одна чат-идентичность — один пользователь CRM
func (r *RegistryRepo) SetMapping(ctx context.Context, chatID string, crmUserID int64) error {
	query := `INSERT INTO user_mappings (chat_id, crm_user_id) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET crm_user_id = EXCLUDED.crm_user_id`

	_, err := r.pool.Exec(ctx, query, chatID, crmUserID)
	if err != nil {
		return fmt.Errorf("postgres: failed to set user mapping: %w", err)
	}
	return nil
}

func (r *RegistryRepo) loadIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch registry: %w", err)
	}
	defer rows.Close()

	// Инициализируем слайс, чтобы избежать возврата nil
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan user id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}
