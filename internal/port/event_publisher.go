package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}
