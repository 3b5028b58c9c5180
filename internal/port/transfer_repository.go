package port

import (
	"context"
	"time"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type TransferRepository interface {
	// Create persists a new transfer
	Create(ctx context.Context, transfer domain.Transfer) error

	// Get retrieves a transfer by ID, domain.ErrNotFound if missing
	Get(ctx context.Context, id string) (*domain.Transfer, error)

	// Update saves transfer only if the stored version equals expectedVersion,
	// otherwise domain.ErrVersionConflict
	Update(ctx context.Context, transfer domain.Transfer, expectedVersion int) error

	// ListByLocation returns transfers where the location is origin or destination
	ListByLocation(ctx context.Context, locationID domain.LocationID) ([]domain.Transfer, error)

	// ListByPart returns every transfer of a part
	ListByPart(ctx context.Context, partID domain.PartID) ([]domain.Transfer, error)

	// ListPendingBefore returns PENDING transfers requested before cutoff
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transfer, error)
}
