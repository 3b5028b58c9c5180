package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/parts-stock/internal/adapter/discovery"
	"github.com/rl1809/parts-stock/internal/adapter/handler"
	"github.com/rl1809/parts-stock/internal/adapter/messaging"
	"github.com/rl1809/parts-stock/internal/adapter/storage"
	"github.com/rl1809/parts-stock/internal/config"
	"github.com/rl1809/parts-stock/internal/core/service"
	"github.com/rl1809/parts-stock/internal/port"
)

type publisher interface {
	port.EventPublisher
	Close() error
}

// backends holds the adapters selected by config plus what must be closed.
type backends struct {
	stock     port.StockStore
	guard     port.IdempotencyGuard
	transfers port.TransferRepository
	sales     port.SaleRepository
	catalog   port.Catalog
	carts     port.CartStore
	audit     port.AdjustmentLog

	closers []func() error
}

func (b *backends) close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers with the event workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	// Event pipeline
	bus := service.NewEventBus(cfg.Events.QueueSize, logger)
	var pub publisher = messaging.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		pub = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Events.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.PublishLoop(id, bus.Events(), pub, logger)
		}(i)
	}
	logger.Info("started event workers", zap.Int("workers", cfg.Events.Workers))

	svc := newServices(b, bus, logger)
	if err := seedCatalog(ctx, cfg, svc.Catalog, logger); err != nil {
		return err
	}

	expirer := service.NewTransferExpirer(svc.Transfers, cfg.Transfer.PendingTTL, cfg.Transfer.ExpiryInterval, logger)
	if expirer.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			expirer.Run(ctx)
		}()
		logger.Info("pending transfer expiry enabled", zap.Duration("ttl", cfg.Transfer.PendingTTL))
	}

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterStockServiceServer(grpcServer, handler.NewGRPCHandler(svc, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.StockServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	router := mux.NewRouter()
	handler.NewHTTPHandler(svc, logger).RegisterRoutes(router)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	var consul *discovery.ConsulClient
	if cfg.Consul.Addr != "" {
		consul, err = registerService(cfg, logger)
		if err != nil {
			logger.Error("consul registration failed", zap.Error(err))
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if consul != nil {
		if err := consul.DeregisterService(cfg.ServiceID); err != nil {
			logger.Warn("consul deregistration failed", zap.Error(err))
		}
	}

	healthServer.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Stop the expirer, then drain queued events
	cancel()
	bus.Close()
	wg.Wait()
	if err := pub.Close(); err != nil {
		logger.Warn("publisher close failed", zap.Error(err))
	}
	logger.Info("workers stopped")
	return nil
}

func newServices(b *backends, bus *service.EventBus, logger *zap.Logger) handler.Services {
	audit := service.NewAuditService(b.audit, logger)
	ledger := service.NewLedgerService(b.stock, b.transfers, audit, bus, logger)
	checkout := service.NewCheckoutService(b.sales, ledger, b.guard, bus, logger)
	return handler.Services{
		Ledger:    ledger,
		Audit:     audit,
		Transfers: service.NewTransferService(b.transfers, ledger, b.guard, bus, logger),
		Carts:     service.NewCartService(b.carts, b.catalog, ledger, checkout, logger),
		Checkout:  checkout,
		Catalog:   service.NewCatalogService(b.catalog, ledger, logger),
	}
}

// seedCatalog upserts the configured seed file, so restarting with the same
// file is harmless.
func seedCatalog(ctx context.Context, cfg *config.Config, catalog *service.CatalogService, logger *zap.Logger) error {
	if cfg.Catalog.SeedPath == "" {
		return nil
	}
	seed, err := storage.LoadCatalogSeed(cfg.Catalog.SeedPath)
	if err != nil {
		return err
	}
	if err := catalog.Import(ctx, seed.Locations, seed.Parts); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	logger.Info("catalog seeded",
		zap.String("path", cfg.Catalog.SeedPath),
		zap.Int("locations", len(seed.Locations)),
		zap.Int("parts", len(seed.Parts)))
	return nil
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{
		stock:     storage.NewMemoryStockStore(),
		guard:     storage.NewMemoryIdempotency(port.IdempotencyWindow),
		transfers: storage.NewMemoryTransferRepository(),
		sales:     storage.NewMemorySaleRepository(),
		catalog:   storage.NewMemoryCatalog(),
		carts:     storage.NewMemoryCartStore(),
		audit:     storage.NewMemoryAdjustmentLog(),
	}

	var db *sql.DB
	if cfg.UsesMySQL() {
		var err error
		if db, err = openMySQL(ctx, cfg.MySQL); err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		logger.Info("connected to mysql")
	}

	switch cfg.Ledger.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		b.closers = append(b.closers, rdb.Close)
		logger.Info("connected to redis")

		redisAdapter := storage.NewRedisAdapter(rdb)
		b.stock = redisAdapter
		b.guard = redisAdapter
		b.carts = storage.NewRedisCartStore(rdb, cfg.Cart.TTL)
		b.transfers = storage.NewRedisTransferRepository(rdb)
		b.sales = storage.NewRedisSaleRepository(rdb)
		b.catalog = storage.NewRedisCatalog(rdb)
	case config.BackendMySQL:
		b.stock = storage.NewMySQLAdapter(db)
		b.transfers = storage.NewMySQLTransferRepository(db)
		b.sales = storage.NewMySQLSaleRepository(db)
		b.catalog = storage.NewMySQLCatalog(db)
	}

	switch cfg.Audit.Backend {
	case config.BackendMySQL:
		b.audit = storage.NewSQLAdjustmentLog(sqlx.NewDb(db, "mysql"))
	case config.BackendSQLite:
		audit, err := storage.OpenSQLiteAdjustmentLog(ctx, cfg.Audit.SQLitePath)
		if err != nil {
			b.close(logger)
			return nil, err
		}
		b.audit = audit
		b.closers = append(b.closers, audit.Close)
	}

	logger.Info("backends ready",
		zap.String("ledger", cfg.Ledger.Backend),
		zap.String("audit", cfg.Audit.Backend))
	return b, nil
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

func registerService(cfg *config.Config, logger *zap.Logger) (*discovery.ConsulClient, error) {
	client, err := discovery.NewConsulClient(cfg.Consul.Addr)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	err = client.RegisterService(discovery.Registration{
		ServiceID:   cfg.ServiceID,
		ServiceName: cfg.ServiceName,
		HTTPAddr:    cfg.HTTP.Addr,
		HealthHost:  host,
		Tags:        []string{"http", "grpc"},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("registered with consul", zap.String("addr", cfg.Consul.Addr))
	return client, nil
}
