package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

func TestSanitizeHappyPath(t *testing.T) {
	fields, err := Sanitize(domain.EntityPerson, domain.OpCreate, map[string]string{
		"name":        "Ada Lovelace",
		"email":       "ada@example.com",
		"assignee_id": "42",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.KindString, fields["name"].Kind)
	assert.Equal(t, "Ada Lovelace", fields["name"].Str)
	assert.Equal(t, domain.KindNumber, fields["assignee_id"].Kind)
	assert.Equal(t, float64(42), fields["assignee_id"].Num)
}

func TestUnknownFieldRejected(t *testing.T) {
	_, err := Sanitize(domain.EntityPerson, domain.OpCreate, map[string]string{
		"name":     "Ada",
		"password": "hunter2",
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems[0], "password")
}

func TestAllProblemsCollectedAtOnce(t *testing.T) {
	_, err := Sanitize(domain.EntityOpportunity, domain.OpCreate, map[string]string{
		"monetary_value": "not-a-number",
		"close_date":     "15.03.2026",
		"bogus":          "x",
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	// Три проблемы с полями плюс отсутствующий name
	assert.Len(t, vErr.Problems, 4)
}

func TestRequiredFieldOnlyForCreate(t *testing.T) {
	_, err := Sanitize(domain.EntityCompany, domain.OpCreate, map[string]string{})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	// Для update частичный набор полей валиден
	fields, err := Sanitize(domain.EntityCompany, domain.OpUpdate, map[string]string{
		"details": "Updated notes",
	})
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestNegativeMonetaryValue(t *testing.T) {
	_, err := Sanitize(domain.EntityOpportunity, domain.OpUpdate, map[string]string{
		"monetary_value": "-100",
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems[0], "negative")
}

func TestInvalidEmail(t *testing.T) {
	_, err := Sanitize(domain.EntityPerson, domain.OpUpdate, map[string]string{
		"email": "not-an-email",
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestDateCoercion(t *testing.T) {
	fields, err := Sanitize(domain.EntityTask, domain.OpUpdate, map[string]string{
		"due_date": "2026-09-01",
	})
	require.NoError(t, err)
	require.Equal(t, domain.KindDate, fields["due_date"].Kind)
	assert.Equal(t, 2026, fields["due_date"].Date.Year())
}

func TestStringTruncatedToLimit(t *testing.T) {
	fields, err := Sanitize(domain.EntityPerson, domain.OpUpdate, map[string]string{
		"name": strings.Repeat("a", 600),
	})
	require.NoError(t, err)
	assert.Len(t, fields["name"].Str, 500)
}

func TestEmptyValuesDropped(t *testing.T) {
	fields, err := Sanitize(domain.EntityPerson, domain.OpUpdate, map[string]string{
		"details": "   ",
		"title":   "Engineer",
	})
	require.NoError(t, err)
	_, ok := fields["details"]
	assert.False(t, ok)
	assert.Len(t, fields, 1)
}

func TestAllows(t *testing.T) {
	assert.True(t, Allows(domain.EntityTask, "assignee_id"))
	assert.False(t, Allows(domain.EntityTask, "monetary_value"))
	assert.False(t, Allows(domain.EntityType("unknown"), "name"))
}
