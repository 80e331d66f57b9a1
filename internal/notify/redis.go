package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisSink публикует уведомления в Pub/Sub каналы Redis.
// Чат-адаптеры подписываются на свои каналы и превращают JSON в сообщения
// мессенджера; шлюз про конкретный мессенджер не знает.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}
