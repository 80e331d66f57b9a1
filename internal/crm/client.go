package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

// Invoker — контракт клиента CRM для движка согласования и прямого
// (админского) пути. Реализуется Client и поверх него — Reliability.
type Invoker interface {
	Execute(ctx context.Context, op domain.Operation, entity domain.EntityType, entityID *int64, fields map[string]domain.FieldValue) (*domain.Record, error)
	Exists(ctx context.Context, entity domain.EntityType, entityID int64) (bool, error)
}

// Client выполняет CRUD-вызовы к Copper API поверх HTTP.
// Каждый вызов проходит через общий бюджет запросов.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userEmail  string
	budget     *Budget
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey, userEmail string, callTimeout time.Duration, budget *Budget, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		userEmail:  userEmail,
		budget:     budget,
		logger:     logger.Named("crm"),
	}
}

// Execute выполняет одну мутацию. Ответ Copper — JSON-запись с полем id,
// которое используется как entityId для последующих операций.
func (c *Client) Execute(ctx context.Context, op domain.Operation, entity domain.EntityType, entityID *int64, fields map[string]domain.FieldValue) (*domain.Record, error) {
	resource := entity.ResourcePath()
	if resource == "" {
		return nil, fmt.Errorf("crm: unknown entity type %q", entity)
	}

	var method, path string
	var payload map[string]interface{}

	switch op {
	case domain.OpCreate:
		method, path = http.MethodPost, resource
		payload = BuildPayload(entity, fields)
	case domain.OpUpdate:
		if entityID == nil {
			return nil, errors.New("crm: update requires entity id")
		}
		method, path = http.MethodPut, fmt.Sprintf("%s/%d", resource, *entityID)
		payload = BuildPayload(entity, fields)
	case domain.OpDelete:
		if entityID == nil {
			return nil, errors.New("crm: delete requires entity id")
		}
		method, path = http.MethodDelete, fmt.Sprintf("%s/%d", resource, *entityID)
	default:
		return nil, fmt.Errorf("crm: unknown operation %q", op)
	}

	data, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	// DELETE может вернуть пустое тело — запись все равно удалена
	if len(data) == 0 {
		rec := &domain.Record{}
		if entityID != nil {
			rec.ID = *entityID
		}
		return rec, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("crm: malformed response body: %w", err)
	}

	rec := &domain.Record{Raw: raw}
	if id, ok := raw["id"].(float64); ok {
		rec.ID = int64(id)
	} else if entityID != nil {
		rec.ID = *entityID
	}
	if name, ok := raw["name"].(string); ok {
		rec.Name = name
	}
	return rec, nil
}

// Exists проверяет наличие цели до создания запроса на согласование.
// Update/Delete по несуществующей записи отклоняются еще на входе.
func (c *Client) Exists(ctx context.Context, entity domain.EntityType, entityID int64) (bool, error) {
	resource := entity.ResourcePath()
	if resource == "" {
		return false, fmt.Errorf("crm: unknown entity type %q", entity)
	}

	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", resource, entityID), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// do — единая точка исхода HTTP: бюджет, заголовки, классификация ошибок.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if err := c.budget.Acquire(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("crm: failed to encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return nil, fmt.Errorf("crm: failed to build request: %w", err)
	}

	// Схема аутентификации Copper Developer API
	req.Header.Set("X-PW-AccessToken", c.apiKey)
	req.Header.Set("X-PW-Application", "developer_api")
	req.Header.Set("X-PW-UserEmail", c.userEmail)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		tErr := classifyTransport(err)
		c.logger.Warn("crm transport failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.Bool("request_sent", tErr.RequestSent),
			zap.Error(err))
		return nil, tErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Cause: err, RequestSent: true}
	}

	c.logger.Debug("crm call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      errors.New("crm responded 429"),
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
