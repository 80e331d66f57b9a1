package notify

/*
Файл dispatcher.go реализует порт уведомлений движка согласования.

Доставка fire-and-forget: NotifyApprovers/NotifyOutcome ставят сообщение
в неблокирующую очередь и сразу возвращаются — латентность чат-интерфейса
не зависит от доступности транспорта. При переполнении буфера сообщение
сбрасывается с записью в лог (Load Shedding), при остановке сервиса буфер
вычитывается полностью (Drain Pattern).
*/

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"go.uber.org/zap"
)

// Sink — физический транспорт сообщения (Redis Pub/Sub в проде)
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// message — единица очереди: канал адресата плюс готовый JSON
type message struct {
	channel string
	payload []byte
}

type Dispatcher struct {
	ch     chan message
	sink   Sink
	logger *zap.Logger
	wg     sync.WaitGroup

	// RLock на каждом enqueue: write-lock в Stop дожидается всех
	// отправителей, после чего канал можно закрывать без гонки
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sink Sink, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Dispatcher{
		ch:     make(chan message, bufferSize),
		sink:   sink,
		logger: logger.With(zap.String("mod", "notify")),
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop запирает вход в канал и ждет, пока воркер допишет остатки
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher: closing channel and draining buffer...")
	close(d.ch)
	d.wg.Wait()
	d.logger.Info("dispatcher stopped gracefully")
}

// Len — текущая глубина очереди, отдается в метрики
func (d *Dispatcher) Len() int {
	return len(d.ch)
}

// approverHint — подсказка согласующему: компактная сводка запроса
type approverHint struct {
	RequestID   string            `json:"request_id"`
	Operation   string            `json:"operation"`
	EntityType  string            `json:"entity_type"`
	EntityID    *int64            `json:"entity_id,omitempty"`
	RequesterID string            `json:"requester_id"`
	Fields      map[string]string `json:"fields"`
	CreatedAt   time.Time         `json:"created_at"`
}

// outcomeNote — итог запроса для инициатора
type outcomeNote struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	RecordID  int64  `json:"record_id,omitempty"`
}

// NotifyApprovers рассылает подсказку каждому из снимка согласующих
func (d *Dispatcher) NotifyApprovers(req *domain.PendingRequest) {
	display := make(map[string]string, len(req.Fields))
	for k, v := range req.Fields {
		display[k] = v.Display()
	}

	payload, err := json.Marshal(approverHint{
		RequestID:   req.ID,
		Operation:   string(req.Operation),
		EntityType:  string(req.EntityType),
		EntityID:    req.EntityID,
		RequesterID: req.RequesterID,
		Fields:      display,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		d.logger.Error("failed to marshal approver hint", zap.String("request_id", req.ID), zap.Error(err))
		return
	}

	for _, approverID := range req.Approvers {
		d.enqueue(infra.ApproverChannel(approverID), payload, req.ID)
	}
}

// NotifyOutcome доставляет итог инициатору запроса
func (d *Dispatcher) NotifyOutcome(req *domain.PendingRequest, out domain.Outcome) {
	payload, err := json.Marshal(outcomeNote{
		RequestID: req.ID,
		Status:    string(out.Status),
		Reason:    out.Reason,
		RecordID:  out.RecordID,
	})
	if err != nil {
		d.logger.Error("failed to marshal outcome", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	d.enqueue(infra.OutcomeChannel(req.RequesterID), payload, req.ID)
}

func (d *Dispatcher) enqueue(channel string, payload []byte, requestID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped: dispatcher is stopping", zap.String("request_id", requestID))
		return
	}

	// Load Shedding: переполненный буфер не тормозит Hot Path
	select {
	case d.ch <- message{channel: channel, payload: payload}:
	default:
		d.logger.Error("notify_buffer_overflow",
			zap.String("channel", channel),
			zap.String("request_id", requestID),
		)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for msg := range d.ch {
		// Background: основной контекст к моменту drain уже может быть закрыт
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.sink.Publish(ctx, msg.channel, msg.payload); err != nil {
			// Сбой доставки — не сбой движка: уведомления best-effort
			d.logger.Warn("notification delivery failed",
				zap.String("channel", msg.channel),
				zap.Error(err))
		}
		cancel()
	}
}
