package gateway

/*
Файл freeze.go реализует заморозку инициаторов — оперативный стоп-кран
для скомпрометированной чат-идентичности. Замороженный пользователь не
может подавать новые запросы на запись; уже созданные PendingRequest
продолжают жить по обычным правилам.

Состояние двухуровневое:
- L1 (RAM) — потокобезопасная мапа, проверка в Hot Path без сети;
- L2 (Redis Set) — общее состояние всех инстансов шлюза.
Синхронизация через Pub/Sub сигнал формата "requesterID:on|off".
*/

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"go.uber.org/zap"
)

type FreezeManager struct {
	mu     sync.RWMutex
	frozen map[string]struct{}
	rdb    *redis.Client
	logger *zap.Logger
}

func NewFreezeManager(rdb *redis.Client, logger *zap.Logger) *FreezeManager {
	return &FreezeManager{
		frozen: make(map[string]struct{}),
		rdb:    rdb,
		logger: logger.Named("freeze"),
	}
}

// Init загружает текущее множество замороженных при старте сервиса
func (m *FreezeManager) Init(ctx context.Context) error {
	ids, err := m.rdb.SMembers(ctx, infra.RedisKeyFrozenRequesters).Result()
	if err != nil {
		return fmt.Errorf("freeze: failed to load frozen set: %w", err)
	}

	m.mu.Lock()
	m.frozen = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m.frozen[id] = struct{}{}
	}
	m.mu.Unlock()

	m.logger.Info("frozen requesters loaded", zap.Int("count", len(ids)))
	return nil
}

// IsFrozen — проверка в Hot Path, только RAM
func (m *FreezeManager) IsFrozen(requesterID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.frozen[requesterID]
	return ok
}

// Freeze пишет в Redis и транслирует сигнал на все инстансы.
// Локальная мапа обновится через собственную подписку — единый путь
// для своих и чужих сигналов.
func (m *FreezeManager) Freeze(ctx context.Context, requesterID string) error {
	if err := m.rdb.SAdd(ctx, infra.RedisKeyFrozenRequesters, requesterID).Err(); err != nil {
		return fmt.Errorf("freeze: failed to persist: %w", err)
	}
	m.apply(requesterID, true)
	return m.rdb.Publish(ctx, infra.RedisChanFreezeSignal, requesterID+":on").Err()
}

func (m *FreezeManager) Unfreeze(ctx context.Context, requesterID string) error {
	if err := m.rdb.SRem(ctx, infra.RedisKeyFrozenRequesters, requesterID).Err(); err != nil {
		return fmt.Errorf("freeze: failed to persist: %w", err)
	}
	m.apply(requesterID, false)
	return m.rdb.Publish(ctx, infra.RedisChanFreezeSignal, requesterID+":off").Err()
}

func (m *FreezeManager) apply(requesterID string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.frozen[requesterID] = struct{}{}
	} else {
		delete(m.frozen, requesterID)
	}
}

// StartListener — "живучая" подписка на сигналы заморозки.
// Обрабатывает переподключения: при каждом успешном коннекте состояние
// пересинхронизируется из Redis, пропущенные сигналы не теряются.
func (m *FreezeManager) StartListener(ctx context.Context) {
	for {
		pubsub := m.rdb.Subscribe(ctx, infra.RedisChanFreezeSignal)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			m.logger.Error("failed to subscribe to freeze signal", zap.Error(err))
			pubsub.Close()

			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := m.Init(ctx); err != nil {
			m.logger.Error("freeze sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "requester_id:on|off"
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 {
					m.logger.Error("invalid freeze signal format", zap.String("payload", msg.Payload))
					continue
				}
				requesterID, state := msg.Payload[:idx], msg.Payload[idx+1:]

				m.apply(requesterID, state == "on" || state == "true")
				m.logger.Info("freeze signal applied",
					zap.String("requester_id", requesterID),
					zap.String("state", state))
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
