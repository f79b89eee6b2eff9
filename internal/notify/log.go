package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes events to the structured log.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, e Event) error {
	l.logger.Info("order event",
		zap.String("type", string(e.Type)),
		zap.String("order_id", string(e.OrderID)),
		zap.String("order_number", e.OrderNumber),
		zap.String("status", e.Status),
		zap.Int("recipients", len(e.Recipients)),
	)
	return nil
}
