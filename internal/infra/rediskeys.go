package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "crmgate"
)

// Ключи для Sets (состояние)
const (
	RedisKeyFrozenRequesters = RedisNamespace + ":requesters:frozen_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanFreezeSignal — трансляция заморозки/разморозки инициатора на все инстансы
	RedisChanFreezeSignal = RedisNamespace + ":requesters:freeze-signal"

	// RedisChanApprovalPrefix — персональные каналы подсказок согласующим:
	// crmgate:notify:approver:{approverID}
	RedisChanApprovalPrefix = RedisNamespace + ":notify:approver"

	// RedisChanOutcomePrefix — каналы итогов для инициаторов:
	// crmgate:notify:outcome:{requesterID}
	RedisChanOutcomePrefix = RedisNamespace + ":notify:outcome"
)

// ApproverChannel возвращает канал подсказок конкретного согласующего
func ApproverChannel(approverID string) string {
	return fmt.Sprintf("%s:%s", RedisChanApprovalPrefix, approverID)
}

// OutcomeChannel возвращает канал итогов конкретного инициатора
func OutcomeChannel(requesterID string) string {
	return fmt.Sprintf("%s:%s", RedisChanOutcomePrefix, requesterID)
}
