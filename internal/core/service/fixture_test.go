package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/adapter/storage"
	"github.com/rl1809/parts-stock/internal/core/domain"
)

var (
	storeA = domain.Session{ID: "sess-a", Actor: "ana", LocationID: 1}
	storeB = domain.Session{ID: "sess-b", Actor: "bruno", LocationID: 2}
)

type fixture struct {
	stock     *storage.MemoryStockStore
	transfers *storage.MemoryTransferRepository
	sales     *storage.MemorySaleRepository
	log       *storage.MemoryAdjustmentLog
	catalog   *storage.MemoryCatalog
	bus       *EventBus

	ledger   *LedgerService
	audit    *AuditService
	transfer *TransferService
	checkout *CheckoutService
	carts    *CartService
	search   *CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		stock:     storage.NewMemoryStockStore(),
		transfers: storage.NewMemoryTransferRepository(),
		sales:     storage.NewMemorySaleRepository(),
		log:       storage.NewMemoryAdjustmentLog(),
		catalog:   storage.NewMemoryCatalog(),
		bus:       NewEventBus(1000, logger),
	}
	guard := storage.NewMemoryIdempotency(0)

	f.audit = NewAuditService(f.log, logger)
	f.ledger = NewLedgerService(f.stock, f.transfers, f.audit, f.bus, logger)
	f.transfer = NewTransferService(f.transfers, f.ledger, guard, f.bus, logger)
	f.checkout = NewCheckoutService(f.sales, f.ledger, guard, f.bus, logger)
	f.carts = NewCartService(storage.NewMemoryCartStore(), f.catalog, f.ledger, f.checkout, logger)
	f.search = NewCatalogService(f.catalog, f.ledger, logger)
	return f
}

func (f *fixture) seed(part domain.PartID, loc domain.LocationID, qty int) domain.StockKey {
	key := domain.StockKey{PartID: part, LocationID: loc}
	f.stock.Set(key, qty)
	return key
}

func (f *fixture) addPart(id domain.PartID, name, price string) {
	f.catalog.AddPart(domain.Part{ID: id, Name: name, Code: string(id), Brand: "Bosch", Price: decimal.RequireFromString(price)})
}

func (f *fixture) qty(t *testing.T, key domain.StockKey) int {
	t.Helper()
	q, err := f.stock.GetQuantity(context.Background(), key)
	if err != nil {
		t.Fatalf("get quantity: %v", err)
	}
	return q
}

func (f *fixture) drainEvents() []domain.Event {
	var out []domain.Event
	for {
		select {
		case e := <-f.bus.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

// failingLog is an AdjustmentLog whose writes always fail.
type failingLog struct{}

var errLogDown = errors.New("audit store unavailable")

func (failingLog) Append(ctx context.Context, entry domain.AdjustmentLogEntry) error {
	return errLogDown
}

func (failingLog) List(ctx context.Context, locationID domain.LocationID, window domain.DateRange) ([]domain.AdjustmentLogEntry, error) {
	return nil, errLogDown
}
