package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/partsstock?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := MigrateMySQL(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMySQLApplyDeltas_MoveIsAtomic(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	from := domain.StockKey{PartID: "mysql-move", LocationID: 1}
	to := domain.StockKey{PartID: "mysql-move", LocationID: 2}

	// Setup
	if err := adapter.SetStock(ctx, from, 5); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	adapter.SetStock(ctx, to, 0)

	entries, err := adapter.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(from, 3), domain.Credit(to, 3)})
	if err != nil {
		t.Fatalf("ApplyDeltas failed: %v", err)
	}
	if entries[0].Quantity != 2 || entries[1].Quantity != 3 {
		t.Errorf("expected 2/3, got %d/%d", entries[0].Quantity, entries[1].Quantity)
	}

	// Second move exceeds origin: nothing changes
	_, err = adapter.ApplyDeltas(ctx, []domain.StockDelta{domain.Credit(to, 3), domain.Debit(from, 3)})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	qFrom, _ := adapter.GetQuantity(ctx, from)
	qTo, _ := adapter.GetQuantity(ctx, to)
	if qFrom != 2 || qTo != 3 {
		t.Errorf("expected 2/3 after failed move, got %d/%d", qFrom, qTo)
	}
}

func TestMySQLApplyDeltas_OptimisticExpectation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	key := domain.StockKey{PartID: "mysql-cas", LocationID: 1}
	adapter.SetStock(ctx, key, 10)

	if _, err := adapter.ApplyDeltas(ctx, []domain.StockDelta{{Key: key, Delta: -1, Expected: 10}}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// Stale expectation
	_, err := adapter.ApplyDeltas(ctx, []domain.StockDelta{{Key: key, Delta: -1, Expected: 10}})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got: %v", err)
	}
}

func TestMySQLGetQuantity_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	qty, err := adapter.GetQuantity(context.Background(), domain.StockKey{PartID: "nonexistent-part", LocationID: 77})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 0 {
		t.Errorf("expected 0, got %d", qty)
	}
}

func TestMySQLTransferRepository_VersionCheck(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewMySQLTransferRepository(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	transfer := domain.Transfer{
		ID:                  uuid.NewString(),
		PartID:              "mysql-transfer",
		OriginLocation:      1,
		DestinationLocation: 2,
		Quantity:            3,
		Mode:                domain.TransferModeDelivery,
		Status:              domain.TransferStatusPending,
		RequestedBy:         "tester",
		RequestedAt:         now,
		History:             []domain.TransferEvent{{To: domain.TransferStatusPending, Actor: "tester", At: now}},
		Version:             1,
	}
	if err := repo.Create(ctx, transfer); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	transfer.Apply(domain.TransferStatusSeparating, "origin", now)
	if err := repo.Update(ctx, transfer, 1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Stale version
	if err := repo.Update(ctx, transfer, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got: %v", err)
	}

	got, err := repo.Get(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.TransferStatusSeparating || got.ApprovedAt == nil || len(got.History) != 2 {
		t.Errorf("unexpected transfer: %+v", got)
	}
}

func TestMySQLSaleRepository_ListPending(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewMySQLSaleRepository(db)
	location := domain.LocationID(9000 + time.Now().Unix()%1000)

	sale := domain.PendingSale{
		ID:              uuid.NewString(),
		LocationID:      location,
		Seller:          "seller",
		ClientName:      "client",
		Items:           []domain.SaleLine{{PartID: "p1", Name: "Filtro", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")}},
		Subtotal:        decimal.RequireFromString("21.00"),
		DiscountPercent: decimal.Zero,
		Discount:        decimal.Zero,
		Total:           decimal.RequireFromString("21.00"),
		Status:          domain.SaleStatusAwaitingPayment,
		CreatedAt:       time.Now().UTC(),
		Version:         1,
	}
	if err := repo.Create(ctx, sale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pending, err := repo.ListPending(ctx, location)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || !pending[0].Total.Equal(sale.Total) {
		t.Fatalf("unexpected pending sales: %+v", pending)
	}

	sale.Status = domain.SaleStatusFinalized
	sale.Version = 2
	if err := repo.Update(ctx, sale, 1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	pending, _ = repo.ListPending(ctx, location)
	if len(pending) != 0 {
		t.Errorf("expected empty queue, got %d", len(pending))
	}
}
