package crm

import (
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
)

// BuildPayload разворачивает нормализованные поля в wire-формат Copper.
// Большинство полей идут как есть; контактные данные Copper принимает
// только в виде вложенных структур с категорией.
func BuildPayload(entity domain.EntityType, fields map[string]domain.FieldValue) map[string]interface{} {
	payload := make(map[string]interface{}, len(fields))

	for name, value := range fields {
		switch name {
		case "email":
			if entity == domain.EntityLead {
				// У лидов email — одиночный объект, не список
				payload["email"] = map[string]interface{}{"email": value.Str, "category": "work"}
				continue
			}
			payload["emails"] = []map[string]interface{}{{"email": value.Str, "category": "work"}}
		case "phone":
			payload["phone_numbers"] = []map[string]interface{}{{"number": value.Str, "category": "work"}}
		default:
			payload[name] = value.Wire()
		}
	}

	return payload
}
