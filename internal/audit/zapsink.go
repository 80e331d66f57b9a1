package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapStorage пишет события аудита в обычный лог.
// Используется в режиме database.driver=memory, когда Postgres не поднят.
type ZapStorage struct {
	logger *zap.Logger
}

func NewZapStorage(logger *zap.Logger) *ZapStorage {
	return &ZapStorage{logger: logger.Named("audit-log")}
}

func (s *ZapStorage) WriteBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info("audit",
			zap.String("id", e.ID),
			zap.String("trace_id", e.TraceID),
			zap.String("requester_id", e.RequesterID),
			zap.String("operation", e.Operation),
			zap.String("entity_type", e.EntityType),
			zap.String("mode", string(e.Mode)),
			zap.String("status", e.Status),
			zap.String("error", e.Error),
			zap.String("request_id", e.RequestID),
			zap.Int64("duration_ms", e.DurationMs))
	}
	return nil
}
