package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pullstream-backend/internal/cron"
	"github.com/angelmondragon/pullstream-backend/internal/ledger"
	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/metrics"
	"github.com/angelmondragon/pullstream-backend/pkg/migrate"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/redis"
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
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
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
		lock, err = cron.NewRedisLock(redisClient, redisClient.CronLockKey(envName(cfg.App.Env)), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; run a single cron worker")
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
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
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	clk := clock.NewSystem()
	transferer, err := ledger.NewTransferer(cfg.Ledger, clk)
	if err != nil {
		return nil, err
	}
	transfers := ledger.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	dispatcher, err := ledger.NewDispatcher(ledger.DispatcherParams{
		Repo:       transfers,
		Transferer: transferer,
		Tx:         dbClient,
		Outbox:     outbox.NewService(outboxRepo, logg),
		Clock:      clk,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		Config: ledger.DispatcherConfig{
			EscrowNamespace: cfg.Ledger.EscrowNamespace,
			Timeout:         cfg.Ledger.Timeout,
			MaxAttempts:     cfg.Ledger.MaxAttempts,
		},
	})
	if err != nil {
		return nil, err
	}

	reconcile, err := cron.NewTransferReconcileJob(cron.TransferReconcileJobParams{
		Logger:     logg,
		Repository: transfers,
		Dispatcher: dispatcher,
		BatchSize:  cfg.Ledger.RetryBatchSize,
		Lease:      cfg.Ledger.DispatchLease,
		Now:        clk.Now,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
		Now:        clk.Now,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{reconcile, retention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
