package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/port"
)

// EventBus buffers committed domain events for the publisher workers.
// Emitting never blocks a business operation: when the queue is full the
// event is dropped and logged.
type EventBus struct {
	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	logger *zap.Logger
}

func NewEventBus(queueSize int, logger *zap.Logger) *EventBus {
	return &EventBus{
		queue:  make(chan domain.Event, queueSize),
		logger: logger,
	}
}

func (b *EventBus) Emit(event domain.Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.queue <- event:
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("key", event.Key))
	}
}

func (b *EventBus) Events() <-chan domain.Event {
	return b.queue
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
}

// PublishLoop drains queue until it is closed. Publish failures are
// logged; state changes behind the events are already committed.
func PublishLoop(id int, queue <-chan domain.Event, publisher port.EventPublisher, logger *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.Publish(ctx, event); err != nil {
			logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.Error(err))
		} else {
			logger.Debug("published event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)))
		}

		cancel()
	}
}
