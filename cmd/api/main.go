package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/jewelpos-backend/api/routes"
	"github.com/angelmondragon/jewelpos-backend/internal/commissions"
	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/internal/movements"
	"github.com/angelmondragon/jewelpos-backend/internal/products"
	"github.com/angelmondragon/jewelpos-backend/internal/sales"
	"github.com/angelmondragon/jewelpos-backend/internal/settlements"
	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	"github.com/angelmondragon/jewelpos-backend/pkg/config"
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/instance"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
	"github.com/angelmondragon/jewelpos-backend/pkg/migrate"
	"github.com/angelmondragon/jewelpos-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"instance": instance.GetID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	locker, err := newLocker(cfg, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create entity locker", err)
		os.Exit(1)
	}

	positionCache, err := valuation.NewRedisCache(redisClient, cfg.Ledger.PositionCacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create position cache", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	movementService, err := movements.NewService(movements.NewRepository(conn), dbClient, positionCache, logg)
	exitOnErr(logg, "movement", err)

	valuationService, err := valuation.NewService(valuation.NewRepository(conn), positionCache, ledgerMetrics, logg)
	exitOnErr(logg, "valuation", err)

	productService, err := products.NewService(products.NewRepository(conn), dbClient, movementService, locker, logg)
	exitOnErr(logg, "product", err)

	expenseService, err := expenses.NewService(expenses.NewRepository(conn), dbClient, ledgerMetrics, logg)
	exitOnErr(logg, "expense", err)

	settlementService, err := settlements.NewService(settlements.ServiceParams{
		Repo:    settlements.NewRepository(conn),
		Tx:      dbClient,
		Mirror:  expenseService,
		Locker:  locker,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	exitOnErr(logg, "settlement", err)

	saleService, err := sales.NewService(sales.ServiceParams{
		Repo:        sales.NewRepository(conn),
		Tx:          dbClient,
		Movements:   movementService,
		Positions:   valuationService,
		Settlements: settlementService,
		Locker:      locker,
		Logger:      logg,
	})
	exitOnErr(logg, "sale", err)

	commissionService, err := commissions.NewService(commissions.ServiceParams{
		Repo:    commissions.NewRepository(conn),
		Tx:      dbClient,
		Mirror:  expenseService,
		Locker:  locker,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	exitOnErr(logg, "commission", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":              cfg.App.Env,
		"addr":             addr,
		"distributedLocks": cfg.FeatureFlags.DistributedLocks,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			registry,
			productService,
			movementService,
			valuationService,
			saleService,
			settlementService,
			commissionService,
			expenseService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// newLocker picks redis-backed entity locks unless they are disabled for a
// single-instance deployment.
func newLocker(cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (locks.Locker, error) {
	if !cfg.FeatureFlags.DistributedLocks {
		return locks.NewMemoryLocker(), nil
	}
	return locks.NewRedisLocker(redislock.New(redisClient.Raw()), locks.RedisOptions{
		TTL:     cfg.Ledger.LockTTL,
		Retries: cfg.Ledger.LockRetries,
		Backoff: cfg.Ledger.LockBackoff,
		KeyFunc: redisClient.LockKey,
	}, logg)
}

func exitOnErr(logg *logger.Logger, service string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+service+" service", err)
	os.Exit(1)
}
