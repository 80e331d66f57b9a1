package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

func testClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	budget := NewBudget(1000, time.Minute, ModeFail)
	return NewClient(srv.URL, "test-key", "ops@example.com", 5*time.Second, budget, zap.NewNop()), srv
}

func TestCreatePerson(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/people", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-PW-AccessToken"))
		assert.Equal(t, "developer_api", r.Header.Get("X-PW-Application"))
		assert.Equal(t, "ops@example.com", r.Header.Get("X-PW-UserEmail"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada Lovelace", body["name"])

		// email должен уйти как вложенная структура с категорией
		emails, ok := body["emails"].([]interface{})
		require.True(t, ok)
		first := emails[0].(map[string]interface{})
		assert.Equal(t, "ada@example.com", first["email"])
		assert.Equal(t, "work", first["category"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 101, "name": "Ada Lovelace"})
	})

	rec, err := client.Execute(context.Background(), domain.OpCreate, domain.EntityPerson, nil, map[string]domain.FieldValue{
		"name":  domain.StringValue("Ada Lovelace"),
		"email": domain.StringValue("ada@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), rec.ID)
	assert.Equal(t, "Ada Lovelace", rec.Name)
}

func TestUpdateUsesPutWithID(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/opportunities/55", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(50000), body["monetary_value"])

		json.NewEncoder(w).Encode(map[string]interface{}{"id": 55})
	})

	id := int64(55)
	rec, err := client.Execute(context.Background(), domain.OpUpdate, domain.EntityOpportunity, &id, map[string]domain.FieldValue{
		"monetary_value": domain.NumberValue(50000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), rec.ID)
}

func TestCreateThenUpdateRoundTrip(t *testing.T) {
	// Стаб помнит созданную запись: update принимает только выданный им id
	var mu sync.Mutex
	created := map[string]bool{}

	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/people":
			mu.Lock()
			created["/people/314"] = true
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 314, "name": "Ada Lovelace"})
		case r.Method == http.MethodPut:
			mu.Lock()
			known := created[r.URL.Path]
			mu.Unlock()
			if !known {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 314})
		default:
			http.Error(w, "unexpected route", http.StatusNotFound)
		}
	})

	rec, err := client.Execute(context.Background(), domain.OpCreate, domain.EntityPerson, nil, map[string]domain.FieldValue{
		"name": domain.StringValue("Ada Lovelace"),
	})
	require.NoError(t, err)

	// id из ответа create скармливается update как есть
	updated, err := client.Execute(context.Background(), domain.OpUpdate, domain.EntityPerson, &rec.ID, map[string]domain.FieldValue{
		"title": domain.StringValue("Engineer"),
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
}

func TestDeleteEmptyBody(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/tasks/7", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	id := int64(7)
	rec, err := client.Execute(context.Background(), domain.OpDelete, domain.EntityTask, &id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
}

func TestDateFieldsTravelAsUnixSeconds(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).Unix()
		assert.Equal(t, float64(want), body["close_date"])

		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1})
	})

	_, err := client.Execute(context.Background(), domain.OpCreate, domain.EntityOpportunity, nil, map[string]domain.FieldValue{
		"name":       domain.StringValue("Q1 Deal"),
		"close_date": domain.DateValue(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
}

func TestExists(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path == "/companies/10" {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 10})
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	found, err := client.Exists(context.Background(), domain.EntityCompany, 10)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = client.Exists(context.Background(), domain.EntityCompany, 11)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestServerRateLimitWithRetryAfter(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	id := int64(1)
	_, err := client.Execute(context.Background(), domain.OpUpdate, domain.EntityPerson, &id, nil)
	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 3*time.Second, rlErr.RetryAfter)
	assert.True(t, Retryable(err))
}

func TestClientErrorIsTerminal(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"validation failed"}`, http.StatusUnprocessableEntity)
	})

	_, err := client.Execute(context.Background(), domain.OpCreate, domain.EntityLead, nil, map[string]domain.FieldValue{
		"name": domain.StringValue("x"),
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, Retryable(err))
}

func TestServerErrorIsRetryable(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	id := int64(2)
	_, err := client.Execute(context.Background(), domain.OpDelete, domain.EntityProject, &id, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, Retryable(err))
}

func TestDialFailureIsUnsent(t *testing.T) {
	// Сервер закрыт до вызова: гарантированный отказ на этапе dial
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	budget := NewBudget(10, time.Minute, ModeFail)
	client := NewClient(addr, "k", "e@example.com", time.Second, budget, zap.NewNop())

	_, err := client.Execute(context.Background(), domain.OpCreate, domain.EntityPerson, nil, map[string]domain.FieldValue{
		"name": domain.StringValue("Ada"),
	})
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.False(t, tErr.RequestSent)
}

func TestLeadEmailIsSingleObject(t *testing.T) {
	payload := BuildPayload(domain.EntityLead, map[string]domain.FieldValue{
		"email": domain.StringValue("lead@example.com"),
	})
	email, ok := payload["email"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "lead@example.com", email["email"])
	_, hasList := payload["emails"]
	assert.False(t, hasList)
}
