package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.logger.Info("domain event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("key", event.Key),
		zap.String("actor", event.Actor))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
