package audit

/*
Файл trail.go реализует асинхронный сборщик Audit Trail.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят из Hot Path шлюза через неблокирующий
  канал, задержки записи в БД не влияют на Response Time.
- Batching & Efficiency: накопление в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью, Final Flush гарантирует отсутствие потерь при перезагрузке.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const batchLimit = 100

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Auditor interface {
	Log(event Event)
}

type Trail struct {
	ch            chan Event
	repo          StorageInterface
	flushInterval time.Duration
	logger        *zap.Logger
	wg            sync.WaitGroup

	// RLock на каждом Log: write-lock в Stop дожидается всех писателей,
	// после чего канал можно закрывать без гонки
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		flushInterval: flushInterval,
		logger:        logger.With(zap.String("mod", "audit")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// Len — текущая глубина буфера, отдается в метрики
func (t *Trail) Len() int {
	return len(t.ch)
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении событие уходит в обычный лог,
	// чтобы данные не пропали совсем
	select {
	case t.ch <- event:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("requester_id", event.RequesterID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, batchLimit)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту Final Flush может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитываем остатки и выходим
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchLimit {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
