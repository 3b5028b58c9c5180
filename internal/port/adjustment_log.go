package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type AdjustmentLog interface {
	// Append records a manual correction; entries are never modified
	Append(ctx context.Context, entry domain.AdjustmentLogEntry) error

	// List returns a location's entries inside the range, newest first
	List(ctx context.Context, locationID domain.LocationID, window domain.DateRange) ([]domain.AdjustmentLogEntry, error)
}
