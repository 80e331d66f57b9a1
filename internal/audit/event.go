package audit

import "time"

// Mode — путь, которым мутация прошла через шлюз
type Mode string

const (
	// ModeDirect — админский обход согласования
	ModeDirect Mode = "DIRECT"
	// ModeWorkflow — через Human-in-the-loop
	ModeWorkflow Mode = "WORKFLOW"
)

// Event — единица Audit Trail: кто, что и с каким исходом попытался
// изменить в CRM. Payload хранит нормализованные поля запроса как JSON.
type Event struct {
	ID          string    `json:"id"`
	TraceID     string    `json:"trace_id"`
	RequesterID string    `json:"requester_id"`
	Operation   string    `json:"operation"`
	EntityType  string    `json:"entity_type"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	Payload     []byte    `json:"payload,omitempty"`
	Mode        Mode      `json:"mode"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	RequestID   string    `json:"request_id,omitempty"` // ID записи PendingRequest для ModeWorkflow
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}
