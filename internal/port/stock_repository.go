package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type StockStore interface {
	// GetQuantity returns the quantity for key, 0 when the key was never written
	GetQuantity(ctx context.Context, key domain.StockKey) (int, error)

	// ListByPart returns every location entry of a part
	ListByPart(ctx context.Context, partID domain.PartID) ([]domain.StockEntry, error)

	// ApplyDeltas applies all deltas atomically or none of them.
	// Fails with domain.ErrInsufficientStock when a key would go negative and
	// with domain.ErrVersionConflict when an Expected quantity does not match.
	ApplyDeltas(ctx context.Context, deltas []domain.StockDelta) ([]domain.StockEntry, error)
}
