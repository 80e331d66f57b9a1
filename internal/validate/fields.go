package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

/*
Файл fields.go содержит таблицы допустимых полей по типам сущностей Copper
и коэрцию значений в размеченный union {string, number, date}.
Allowlist защищает API от инъекции произвольных полей из чат-команд.
*/

var allowedFields = map[domain.EntityType]map[string]struct{}{
	domain.EntityPerson: set(
		"name", "prefix", "first_name", "middle_name", "last_name", "suffix",
		"email", "phone", "assignee_id", "company_id", "company_name",
		"contact_type_id", "details", "tags", "title",
	),
	domain.EntityCompany: set(
		"name", "assignee_id", "contact_type_id", "details", "email_domain",
		"phone", "tags",
	),
	domain.EntityOpportunity: set(
		"name", "assignee_id", "close_date", "company_id", "company_name",
		"customer_source_id", "details", "loss_reason_id", "monetary_value",
		"pipeline_id", "pipeline_stage_id", "primary_contact_id", "priority",
		"status", "tags", "win_probability",
	),
	domain.EntityLead: set(
		"name", "prefix", "first_name", "middle_name", "last_name", "suffix",
		"assignee_id", "company_name", "customer_source_id", "details",
		"email", "phone", "monetary_value", "status", "status_id", "tags", "title",
	),
	domain.EntityTask: set(
		"name", "assignee_id", "details", "due_date", "reminder_date",
		"priority", "status", "tags",
	),
	domain.EntityProject: set(
		"name", "assignee_id", "details", "status", "tags",
	),
}

// Поля, обязательные при создании
var requiredFields = map[domain.EntityType][]string{
	domain.EntityPerson:      {"name"},
	domain.EntityCompany:     {"name"},
	domain.EntityOpportunity: {"name"},
	domain.EntityLead:        {"name"},
	domain.EntityTask:        {"name"},
	domain.EntityProject:     {"name"},
}

// Числовые и датные поля — коэрция до сохранения, не при исполнении
var numericFields = set(
	"assignee_id", "company_id", "contact_type_id", "customer_source_id",
	"loss_reason_id", "monetary_value", "pipeline_id", "pipeline_stage_id",
	"primary_contact_id", "win_probability", "status_id",
)

var dateFields = set("close_date", "due_date", "reminder_date")

// Максимальные длины строковых полей
var maxLengths = map[string]int{
	"name":         500,
	"title":        200,
	"details":      10000,
	"company_name": 500,
	"email_domain": 255,
}

const defaultMaxLength = 1000

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Allows сообщает, разрешено ли поле для данного типа сущности
func Allows(entity domain.EntityType, field string) bool {
	allowed, ok := allowedFields[entity]
	if !ok {
		return false
	}
	_, ok = allowed[field]
	return ok
}

// Sanitize фильтрует и приводит сырые поля нормализованного запроса.
// Возвращает ValidationError со всеми проблемами разом, чтобы инициатор
// исправил запрос за один заход, а не по одной ошибке.
func Sanitize(entity domain.EntityType, op domain.Operation, raw map[string]string) (map[string]domain.FieldValue, error) {
	allowed, ok := allowedFields[entity]
	if !ok {
		return nil, &domain.ValidationError{Problems: []string{fmt.Sprintf("unknown entity type: %s", entity)}}
	}

	var problems []string
	out := make(map[string]domain.FieldValue, len(raw))

	for field, value := range raw {
		if _, ok := allowed[field]; !ok {
			problems = append(problems, fmt.Sprintf("field %q is not allowed for %s", field, entity))
			continue
		}

		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue // Пустые значения молча отбрасываем
		}

		coerced, err := coerce(field, trimmed)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out[field] = coerced
	}

	if op == domain.OpCreate {
		for _, req := range requiredFields[entity] {
			if _, ok := out[req]; !ok {
				problems = append(problems, fmt.Sprintf("required field %q is missing or empty", req))
			}
		}
	}

	if len(problems) > 0 {
		return nil, &domain.ValidationError{Problems: problems}
	}
	return out, nil
}

func coerce(field, value string) (domain.FieldValue, error) {
	if _, ok := numericFields[field]; ok {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return domain.FieldValue{}, fmt.Errorf("field %q must be a number, got %q", field, value)
		}
		if field == "monetary_value" && n < 0 {
			return domain.FieldValue{}, fmt.Errorf("monetary value cannot be negative")
		}
		return domain.NumberValue(n), nil
	}

	if _, ok := dateFields[field]; ok {
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return domain.FieldValue{}, fmt.Errorf("field %q must be a date (YYYY-MM-DD), got %q", field, value)
		}
		return domain.DateValue(t), nil
	}

	if field == "email" {
		if !emailPattern.MatchString(value) {
			return domain.FieldValue{}, fmt.Errorf("invalid email format: %s", value)
		}
		return domain.StringValue(value), nil
	}

	// Строковые поля: обрезаем до лимита
	max, ok := maxLengths[field]
	if !ok {
		max = defaultMaxLength
	}
	if len(value) > max {
		value = value[:max]
	}
	return domain.StringValue(value), nil
}
