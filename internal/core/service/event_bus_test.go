package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(2, zap.NewNop())
	for i := 0; i < 5; i++ {
		bus.Emit(domain.Event{Type: domain.EventStockAdjusted})
	}
	assert.Len(t, bus.Events(), 2)
}

func TestEventBus_NilAndClosedAreSafe(t *testing.T) {
	var nilBus *EventBus
	nilBus.Emit(domain.Event{Type: domain.EventSaleCreated})

	bus := NewEventBus(1, zap.NewNop())
	bus.Close()
	bus.Close()
	bus.Emit(domain.Event{Type: domain.EventSaleCreated})
}

func TestPublishLoop_DrainsUntilClosed(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	pub := &recordingPublisher{}

	done := make(chan struct{})
	go func() {
		PublishLoop(0, bus.Events(), pub, zap.NewNop())
		close(done)
	}()

	bus.Emit(domain.Event{Type: domain.EventSaleCreated, Key: "s1"})
	bus.Emit(domain.Event{Type: domain.EventSaleFinalized, Key: "s1"})
	bus.Close()
	<-done

	assert.Len(t, pub.events, 2)
	assert.Equal(t, domain.EventSaleCreated, pub.events[0].Type)
	assert.NotEmpty(t, pub.events[0].ID)
	assert.False(t, pub.events[0].OccurredAt.IsZero())
}

func TestPublishLoop_SurvivesPublishErrors(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	pub := &recordingPublisher{fail: true}

	done := make(chan struct{})
	go func() {
		PublishLoop(0, bus.Events(), pub, zap.NewNop())
		close(done)
	}()

	bus.Emit(domain.Event{Type: domain.EventStockMoved})
	bus.Close()
	<-done
	assert.Empty(t, pub.events)
}
