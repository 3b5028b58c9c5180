package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type Catalog interface {
	// Search matches name, code or brand
	Search(ctx context.Context, query string, limit int) ([]domain.Part, error)

	// GetPart retrieves a part by ID, domain.ErrNotFound if missing
	GetPart(ctx context.Context, id domain.PartID) (*domain.Part, error)

	// Locations lists every known store
	Locations(ctx context.Context) ([]domain.Location, error)

	// SavePart inserts or replaces a part's catalog fields
	SavePart(ctx context.Context, part domain.Part) error

	// SaveLocation inserts or renames a store
	SaveLocation(ctx context.Context, location domain.Location) error
}
