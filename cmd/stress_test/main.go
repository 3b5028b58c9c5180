package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/adapter/storage"
	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/core/service"
	"github.com/rl1809/parts-stock/internal/port"
)

const (
	partID       = domain.PartID("pastilha-freio")
	origin       = domain.LocationID(1)
	destination  = domain.LocationID(2)
	initialStock = 20
)

type options struct {
	backend   string
	redisAddr string
	sales     int
	transfers int
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "stress_test",
		Short: "Race checkouts and transfers against one ledger entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", "memory", "ledger backend (memory|redis)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "localhost:6379", "redis address")
	cmd.Flags().IntVar(&opts.sales, "sales", 30, "pending sales of one unit to finalize")
	cmd.Flags().IntVar(&opts.transfers, "transfers", 20, "approved transfers of one unit to ship")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	originKey := domain.StockKey{PartID: partID, LocationID: origin}
	destKey := domain.StockKey{PartID: partID, LocationID: destination}

	var stock port.StockStore
	switch opts.backend {
	case "memory":
		mem := storage.NewMemoryStockStore()
		mem.Set(originKey, initialStock)
		stock = mem
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()

		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.SetStock(ctx, originKey, initialStock); err != nil {
			return fmt.Errorf("failed to set stock: %w", err)
		}
		if err := redisAdapter.SetStock(ctx, destKey, 0); err != nil {
			return fmt.Errorf("failed to set stock: %w", err)
		}
		stock = redisAdapter
	default:
		return fmt.Errorf("unknown backend %q", opts.backend)
	}

	logger := zap.NewNop()
	transferRepo := storage.NewMemoryTransferRepository()
	guard := storage.NewMemoryIdempotency(0)
	audit := service.NewAuditService(storage.NewMemoryAdjustmentLog(), logger)
	ledger := service.NewLedgerService(stock, transferRepo, audit, nil, logger)
	transfers := service.NewTransferService(transferRepo, ledger, guard, nil, logger)
	checkout := service.NewCheckoutService(storage.NewMemorySaleRepository(), ledger, guard, nil, logger)

	cashier := domain.Session{ID: "caixa", Actor: "caixa", LocationID: origin}
	originManager := domain.Session{ID: "origem", Actor: "gerente", LocationID: origin}
	requester := domain.Session{ID: "destino", Actor: "estoquista", LocationID: destination}

	// Reservations never touch stock, so every one of these is accepted.
	saleIDs := make([]string, 0, opts.sales)
	for i := 0; i < opts.sales; i++ {
		seller := domain.Session{ID: fmt.Sprintf("seller-%d", i), Actor: fmt.Sprintf("vendedor-%d", i), LocationID: origin}
		sale, err := checkout.CreatePendingSale(ctx, seller, service.SaleRequest{
			Items: []domain.SaleLine{{PartID: partID, Name: "Pastilha de freio", Quantity: 1, UnitPrice: decimal.NewFromInt(120)}},
		})
		if err != nil {
			return fmt.Errorf("create sale %d: %w", i, err)
		}
		saleIDs = append(saleIDs, sale.ID)
	}

	transferIDs := make([]string, 0, opts.transfers)
	for i := 0; i < opts.transfers; i++ {
		t, err := transfers.RequestTransfer(ctx, requester, service.TransferRequest{
			PartID:      partID,
			Origin:      origin,
			Destination: destination,
			Quantity:    1,
			Mode:        domain.TransferModeDelivery,
		})
		if err != nil {
			return fmt.Errorf("request transfer %d: %w", i, err)
		}
		if _, err := transfers.Approve(ctx, originManager, t.ID); err != nil {
			return fmt.Errorf("approve transfer %d: %w", i, err)
		}
		transferIDs = append(transferIDs, t.ID)
	}

	// Counters
	var (
		finalized, shipped       atomic.Int32
		salesFailed, shipsFailed atomic.Int32
		unexpected               atomic.Int32
	)

	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range saleIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := checkout.Finalize(ctx, cashier, id, domain.PaymentPix)
			switch {
			case err == nil:
				finalized.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				salesFailed.Add(1)
			default:
				unexpected.Add(1)
				log.Printf("finalize %s: %v", id, err)
			}
		}(id)
	}
	for _, id := range transferIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := transfers.Ship(ctx, originManager, id)
			switch {
			case err == nil:
				shipped.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shipsFailed.Add(1)
			default:
				unexpected.Add(1)
				log.Printf("ship %s: %v", id, err)
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	consumed := int(finalized.Load() + shipped.Load())
	finalStock, err := ledger.GetQuantity(ctx, originKey)
	if err != nil {
		return err
	}
	report, err := ledger.NetworkStock(ctx, partID)
	if err != nil {
		return err
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Backend:          %s\n", opts.backend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Sales Finalized:  %d / %d\n", finalized.Load(), opts.sales)
	fmt.Printf("Transfers Shipped:%d / %d\n", shipped.Load(), opts.transfers)
	fmt.Printf("Rejected:         %d\n", salesFailed.Load()+shipsFailed.Load())
	fmt.Printf("Unexpected:       %d\n", unexpected.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	expected := min(initialStock, opts.sales+opts.transfers)
	if consumed == expected {
		fmt.Printf("PASS: %d units consumed, no overselling\n", consumed)
	} else {
		fmt.Printf("FAIL: expected %d units consumed, got %d\n", expected, consumed)
		failed = true
	}

	fmt.Printf("Final Origin Stock: %d\n", finalStock)
	if finalStock == initialStock-consumed && finalStock >= 0 {
		fmt.Println("PASS: ledger matches successful operations")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", initialStock-consumed, finalStock)
		failed = true
	}

	wantNetwork := initialStock - int(finalized.Load())
	if report.Total == wantNetwork && report.InTransit == int(shipped.Load()) {
		fmt.Printf("PASS: network total %d (in transit %d)\n", report.Total, report.InTransit)
	} else {
		fmt.Printf("FAIL: expected network total %d, got %d (in transit %d)\n", wantNetwork, report.Total, report.InTransit)
		failed = true
	}

	if failed || unexpected.Load() > 0 {
		return errors.New("stress test failed")
	}
	return nil
}
