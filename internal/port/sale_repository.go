package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type SaleRepository interface {
	// Create persists a sale awaiting payment
	Create(ctx context.Context, sale domain.PendingSale) error

	// Get retrieves a sale by ID, domain.ErrNotFound if missing
	Get(ctx context.Context, id string) (*domain.PendingSale, error)

	// Update saves sale with version check for optimistic locking
	Update(ctx context.Context, sale domain.PendingSale, expectedVersion int) error

	// ListPending returns sales awaiting payment at a location, oldest first
	ListPending(ctx context.Context, locationID domain.LocationID) ([]domain.PendingSale, error)
}
