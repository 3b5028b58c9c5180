package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type MemoryTransferRepository struct {
	mu        sync.RWMutex
	transfers map[string]domain.Transfer
}

func NewMemoryTransferRepository() *MemoryTransferRepository {
	return &MemoryTransferRepository{transfers: make(map[string]domain.Transfer)}
}

func (r *MemoryTransferRepository) Create(ctx context.Context, t domain.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transfers[t.ID]; ok {
		return fmt.Errorf("transfer %s already exists", t.ID)
	}
	r.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (r *MemoryTransferRepository) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	c := cloneTransfer(t)
	return &c, nil
}

func (r *MemoryTransferRepository) Update(ctx context.Context, t domain.Transfer, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.transfers[t.ID]
	if !ok {
		return fmt.Errorf("%w: transfer %s", domain.ErrNotFound, t.ID)
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (r *MemoryTransferRepository) ListByLocation(ctx context.Context, locationID domain.LocationID) ([]domain.Transfer, error) {
	return r.filter(func(t domain.Transfer) bool {
		return t.OriginLocation == locationID || t.DestinationLocation == locationID
	}), nil
}

func (r *MemoryTransferRepository) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.Transfer, error) {
	return r.filter(func(t domain.Transfer) bool { return t.PartID == partID }), nil
}

func (r *MemoryTransferRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transfer, error) {
	return r.filter(func(t domain.Transfer) bool {
		return t.Status == domain.TransferStatusPending && t.RequestedAt.Before(cutoff)
	}), nil
}

func (r *MemoryTransferRepository) filter(keep func(domain.Transfer) bool) []domain.Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Transfer{}
	for _, t := range r.transfers {
		if keep(t) {
			out = append(out, cloneTransfer(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func cloneTransfer(t domain.Transfer) domain.Transfer {
	t.History = append([]domain.TransferEvent(nil), t.History...)
	return t
}

type MemorySaleRepository struct {
	mu    sync.RWMutex
	sales map[string]domain.PendingSale
}

func NewMemorySaleRepository() *MemorySaleRepository {
	return &MemorySaleRepository{sales: make(map[string]domain.PendingSale)}
}

func (r *MemorySaleRepository) Create(ctx context.Context, sale domain.PendingSale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sales[sale.ID]; ok {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}
	r.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (r *MemorySaleRepository) Get(ctx context.Context, id string) (*domain.PendingSale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sale, ok := r.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
	}
	c := cloneSale(sale)
	return &c, nil
}

func (r *MemorySaleRepository) Update(ctx context.Context, sale domain.PendingSale, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sales[sale.ID]
	if !ok {
		return fmt.Errorf("%w: sale %s", domain.ErrNotFound, sale.ID)
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (r *MemorySaleRepository) ListPending(ctx context.Context, locationID domain.LocationID) ([]domain.PendingSale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.PendingSale{}
	for _, s := range r.sales {
		if s.LocationID == locationID && s.Status == domain.SaleStatusAwaitingPayment {
			out = append(out, cloneSale(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneSale(s domain.PendingSale) domain.PendingSale {
	s.Items = append([]domain.SaleLine(nil), s.Items...)
	return s
}

type MemoryAdjustmentLog struct {
	mu      sync.RWMutex
	entries []domain.AdjustmentLogEntry
}

func NewMemoryAdjustmentLog() *MemoryAdjustmentLog {
	return &MemoryAdjustmentLog{}
}

func (l *MemoryAdjustmentLog) Append(ctx context.Context, entry domain.AdjustmentLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryAdjustmentLog) List(ctx context.Context, locationID domain.LocationID, window domain.DateRange) ([]domain.AdjustmentLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []domain.AdjustmentLogEntry{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.LocationID == locationID && window.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryCartStore stores carts serialized, like the Redis store does.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string][]byte
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string][]byte)}
}

func (s *MemoryCartStore) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	raw, ok := s.carts[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &cart, nil
}

func (s *MemoryCartStore) Save(ctx context.Context, cart domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	s.mu.Lock()
	s.carts[cart.SessionID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryCartStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
	return nil
}

type MemoryCatalog struct {
	mu        sync.RWMutex
	parts     map[domain.PartID]domain.Part
	locations map[domain.LocationID]domain.Location
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		parts:     make(map[domain.PartID]domain.Part),
		locations: make(map[domain.LocationID]domain.Location),
	}
}

func (c *MemoryCatalog) AddPart(p domain.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts[p.ID] = p
}

func (c *MemoryCatalog) AddLocation(l domain.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[l.ID] = l
}

func (c *MemoryCatalog) SavePart(ctx context.Context, p domain.Part) error {
	c.AddPart(catalogFields(p))
	return nil
}

func (c *MemoryCatalog) SaveLocation(ctx context.Context, l domain.Location) error {
	c.AddLocation(l)
	return nil
}

func (c *MemoryCatalog) Search(ctx context.Context, query string, limit int) ([]domain.Part, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(query)
	out := []domain.Part{}
	for _, p := range c.parts {
		if partMatches(p, q) {
			out = append(out, p)
		}
	}
	return limitParts(out, limit), nil
}

// partMatches expects q already lower-cased.
func partMatches(p domain.Part, q string) bool {
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Code), q) ||
		strings.Contains(strings.ToLower(p.Brand), q)
}

func limitParts(parts []domain.Part, limit int) []domain.Part {
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	if limit > 0 && len(parts) > limit {
		parts = parts[:limit]
	}
	return parts
}

// catalogFields drops the ledger view a part may carry.
func catalogFields(p domain.Part) domain.Part {
	p.StockLocations = nil
	p.TotalStock = 0
	return p
}

func (c *MemoryCatalog) GetPart(ctx context.Context, id domain.PartID) (*domain.Part, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.parts[id]
	if !ok {
		return nil, fmt.Errorf("%w: part %s", domain.ErrNotFound, id)
	}
	return &p, nil
}

func (c *MemoryCatalog) Locations(ctx context.Context) ([]domain.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Location, 0, len(c.locations))
	for _, l := range c.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
