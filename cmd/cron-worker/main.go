package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/jewelpos-backend/internal/commissions"
	"github.com/angelmondragon/jewelpos-backend/internal/cron"
	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(lockScope(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	positionCache, err := valuation.NewRedisCache(redisClient, cfg.Ledger.PositionCacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create position cache", err)
		os.Exit(1)
	}
	valuationService, err := valuation.NewService(valuation.NewRepository(conn), positionCache, ledgerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create valuation service", err)
		os.Exit(1)
	}
	expenseService, err := expenses.NewService(expenses.NewRepository(conn), dbClient, ledgerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create expense service", err)
		os.Exit(1)
	}

	locker, err := newLocker(cfg, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create entity locker", err)
		os.Exit(1)
	}
	mirrorSources, err := cron.NewMirrorSources(settlements.NewRepository(conn), commissions.NewRepository(conn), locker)
	if err != nil {
		logg.Error(context.Background(), "failed to create mirror sources", err)
		os.Exit(1)
	}

	mirrorRetry, err := cron.NewMirrorRetryJob(cron.MirrorRetryJobParams{
		Logger:      logg,
		Mirror:      expenseService,
		Sources:     mirrorSources,
		Metrics:     jobMetrics,
		BatchSize:   cfg.Mirror.RetryBatchSize,
		MaxAttempts: cfg.Mirror.RetryMaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mirror retry job", err)
		os.Exit(1)
	}
	inventoryAudit, err := cron.NewInventoryAuditJob(cron.InventoryAuditJobParams{
		Logger:    logg,
		Positions: valuationService,
		Metrics:   jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory audit job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(mirrorRetry, inventoryAudit)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    jobMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newLocker must match the api's choice so retries and payout deletes
// contend on the same keys.
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

// lockScope keeps staging and production workers sharing one redis apart.
func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker-" + env
}
