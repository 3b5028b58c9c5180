package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

// scratchLocation keeps runs against a shared Redis from seeing each other.
func scratchLocation() domain.LocationID {
	return domain.LocationID(100000 + time.Now().UnixNano()%1000000000)
}

func TestRedisTransferRepository_CreateUpdate(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	repo := NewRedisTransferRepository(client)
	origin, dest := scratchLocation(), scratchLocation()+1
	tr := domain.Transfer{
		ID:                  uuid.NewString(),
		PartID:              domain.PartID("part-" + uuid.NewString()),
		OriginLocation:      origin,
		DestinationLocation: dest,
		Quantity:            2,
		Mode:                domain.TransferModeDelivery,
		Status:              domain.TransferStatusPending,
		RequestedAt:         time.Now().UTC(),
		Version:             1,
	}

	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Create(ctx, tr); err == nil {
		t.Error("expected duplicate create to fail")
	}

	got, err := repo.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 2 || got.OriginLocation != origin {
		t.Errorf("unexpected transfer %+v", got)
	}

	next := *got
	next.Status = domain.TransferStatusSeparating
	next.Version = 2
	if err := repo.Update(ctx, next, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Update(ctx, next, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	missing := next
	missing.ID = uuid.NewString()
	if err := repo.Update(ctx, missing, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, missing.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	for _, loc := range []domain.LocationID{origin, dest} {
		list, err := repo.ListByLocation(ctx, loc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(list) != 1 || list[0].Status != domain.TransferStatusSeparating {
			t.Errorf("location %d: expected the updated transfer, got %+v", loc, list)
		}
	}

	byPart, err := repo.ListByPart(ctx, tr.PartID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byPart) != 1 {
		t.Errorf("expected 1 transfer for part, got %d", len(byPart))
	}
}

func TestRedisTransferRepository_ListPendingBefore(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	repo := NewRedisTransferRepository(client)
	now := time.Now().UTC()
	stale := domain.Transfer{
		ID:                  uuid.NewString(),
		PartID:              "pending-part",
		OriginLocation:      scratchLocation(),
		DestinationLocation: 1,
		Quantity:            1,
		Status:              domain.TransferStatusPending,
		RequestedAt:         now.Add(-2 * time.Hour),
		Version:             1,
	}
	fresh := stale
	fresh.ID = uuid.NewString()
	fresh.RequestedAt = now

	for _, tr := range []domain.Transfer{stale, fresh} {
		if err := repo.Create(ctx, tr); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !containsTransfer(t, repo, now.Add(-time.Hour), stale.ID) {
		t.Error("expected the stale transfer to be listed")
	}
	if containsTransfer(t, repo, now.Add(-time.Hour), fresh.ID) {
		t.Error("fresh transfer listed before cutoff")
	}

	expired := stale
	expired.Status = domain.TransferStatusExpired
	expired.Version = 2
	if err := repo.Update(ctx, expired, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if containsTransfer(t, repo, now.Add(-time.Hour), stale.ID) {
		t.Error("expired transfer still queued")
	}
}

func containsTransfer(t *testing.T, repo *RedisTransferRepository, cutoff time.Time, id string) bool {
	t.Helper()
	list, err := repo.ListPendingBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tr := range list {
		if tr.ID == id {
			return true
		}
	}
	return false
}

func TestRedisSaleRepository_ListPending(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	repo := NewRedisSaleRepository(client)
	loc := scratchLocation()
	now := time.Now().UTC()

	first := domain.PendingSale{
		ID:         uuid.NewString(),
		LocationID: loc,
		Seller:     "vendedor",
		Items:      []domain.SaleLine{{PartID: "pastilha", Quantity: 1, UnitPrice: decimal.RequireFromString("80.00")}},
		Total:      decimal.RequireFromString("80.00"),
		Status:     domain.SaleStatusAwaitingPayment,
		CreatedAt:  now.Add(-time.Minute),
		Version:    1,
	}
	second := first
	second.ID = uuid.NewString()
	second.CreatedAt = now

	for _, s := range []domain.PendingSale{second, first} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	pending, err := repo.ListPending(ctx, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("expected oldest sale first, got %+v", pending)
	}

	done := first
	done.Status = domain.SaleStatusFinalized
	done.PaymentMethod = domain.PaymentPix
	done.Version = 2
	if err := repo.Update(ctx, done, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err = repo.ListPending(ctx, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("expected only the open sale, got %+v", pending)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.SaleStatusFinalized {
		t.Errorf("expected FINALIZED, got %s", got.Status)
	}
}

func TestRedisCatalog_SaveAndSearch(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	catalog := NewRedisCatalog(client)
	brand := "Marca" + uuid.NewString()[:8]
	id := domain.PartID("redis-" + uuid.NewString())

	err := catalog.SavePart(ctx, domain.Part{
		ID:         id,
		Name:       "Correia dentada",
		Brand:      brand,
		Price:      decimal.RequireFromString("120.00"),
		TotalStock: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts, err := catalog.Search(ctx, brand, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 || parts[0].ID != id {
		t.Fatalf("expected part %s, got %+v", id, parts)
	}
	if parts[0].TotalStock != 0 {
		t.Errorf("catalog must not store stock, got %d", parts[0].TotalStock)
	}

	if _, err := catalog.GetPart(ctx, "redis-missing-"+domain.PartID(uuid.NewString())); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	loc := scratchLocation()
	if err := catalog.SaveLocation(ctx, domain.Location{ID: loc, Name: "Filial Norte"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	locations, err := catalog.Locations(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found bool
	for _, l := range locations {
		found = found || (l.ID == loc && l.Name == "Filial Norte")
	}
	if !found {
		t.Errorf("location %d not listed", loc)
	}
}
