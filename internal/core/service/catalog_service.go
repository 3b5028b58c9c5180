package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/port"
)

const (
	minSearchLength    = 3
	defaultSearchLimit = 50
)

// CatalogService joins catalog parts with their ledger quantities.
type CatalogService struct {
	catalog port.Catalog
	ledger  *LedgerService
	logger  *zap.Logger
}

func NewCatalogService(catalog port.Catalog, ledger *LedgerService, logger *zap.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, ledger: ledger, logger: logger}
}

// Search returns nothing for queries shorter than three characters.
func (s *CatalogService) Search(ctx context.Context, query string) ([]domain.Part, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return []domain.Part{}, nil
	}

	parts, err := s.catalog.Search(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}

	names, err := s.locationNames(ctx)
	if err != nil {
		return nil, err
	}

	for i := range parts {
		if err := s.attachStock(ctx, &parts[i], names); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func (s *CatalogService) GetPart(ctx context.Context, id domain.PartID) (*domain.Part, error) {
	part, err := s.catalog.GetPart(ctx, id)
	if err != nil {
		return nil, err
	}
	names, err := s.locationNames(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.attachStock(ctx, part, names); err != nil {
		return nil, err
	}
	return part, nil
}

func (s *CatalogService) attachStock(ctx context.Context, part *domain.Part, names map[domain.LocationID]string) error {
	report, err := s.ledger.NetworkStock(ctx, part.ID)
	if err != nil {
		return err
	}
	part.StockLocations = make([]domain.LocationStock, 0, len(report.Locations))
	for _, loc := range report.Locations {
		loc.Name = names[loc.LocationID]
		if loc.Name == "" {
			loc.Name = "Loja " + loc.LocationID.String()
		}
		part.StockLocations = append(part.StockLocations, loc)
	}
	part.TotalStock = report.OnHand
	return nil
}

func (s *CatalogService) locationNames(ctx context.Context) (map[domain.LocationID]string, error) {
	locations, err := s.catalog.Locations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	names := make(map[domain.LocationID]string, len(locations))
	for _, l := range locations {
		names[l.ID] = l.Name
	}
	return names, nil
}

// RegisterPart adds or updates a part's catalog entry. Stock is never set
// here; quantities only move through the ledger.
func (s *CatalogService) RegisterPart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	part.ID = domain.PartID(strings.TrimSpace(string(part.ID)))
	part.Name = strings.TrimSpace(part.Name)
	if part.ID == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if part.Name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if part.Price.IsNegative() {
		return nil, domain.NewValidationError("price", "must not be negative")
	}

	if err := s.catalog.SavePart(ctx, part); err != nil {
		return nil, fmt.Errorf("save part: %w", err)
	}
	s.logger.Info("part registered", zap.String("part_id", string(part.ID)))
	return s.GetPart(ctx, part.ID)
}

func (s *CatalogService) RegisterLocation(ctx context.Context, location domain.Location) error {
	location.Name = strings.TrimSpace(location.Name)
	if !location.ID.Valid() {
		return domain.NewValidationError("location_id", "must be positive")
	}
	if location.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if err := s.catalog.SaveLocation(ctx, location); err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	s.logger.Info("location registered",
		zap.Stringer("location_id", location.ID),
		zap.String("name", location.Name))
	return nil
}

func (s *CatalogService) Locations(ctx context.Context) ([]domain.Location, error) {
	return s.catalog.Locations(ctx)
}

// Import registers seed locations first so part stock reports carry names.
func (s *CatalogService) Import(ctx context.Context, locations []domain.Location, parts []domain.Part) error {
	for _, l := range locations {
		if err := s.RegisterLocation(ctx, l); err != nil {
			return fmt.Errorf("location %s: %w", l.ID, err)
		}
	}
	for _, p := range parts {
		if _, err := s.RegisterPart(ctx, p); err != nil {
			return fmt.Errorf("part %s: %w", p.ID, err)
		}
	}
	return nil
}
