package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pullstream-backend/api/routes"
	"github.com/angelmondragon/pullstream-backend/internal/gigs"
	"github.com/angelmondragon/pullstream-backend/internal/ledger"
	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/instance"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/metrics"
	"github.com/angelmondragon/pullstream-backend/pkg/migrate"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/redis"
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

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency keys and rate limits are disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gigService, err := buildGigService(cfg, logg, dbClient, redisClient, reg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gig service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, gigService, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func buildGigService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (gigs.Service, error) {
	clk := clock.NewSystem()

	transferer, err := ledger.NewTransferer(cfg.Ledger, clk)
	if err != nil {
		return nil, err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	transfers := ledger.NewRepository(dbClient.DB())

	dispatcher, err := ledger.NewDispatcher(ledger.DispatcherParams{
		Repo:       transfers,
		Transferer: transferer,
		Tx:         dbClient,
		Outbox:     outboxService,
		Clock:      clk,
		Metrics:    metrics.NewLedgerMetrics(reg),
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

	locker, err := buildLocker(cfg.Engine, logg, redisClient)
	if err != nil {
		return nil, err
	}

	policy, err := enums.ParsePayoutPolicy(cfg.Engine.PayoutPolicy)
	if err != nil {
		return nil, err
	}

	return gigs.NewService(gigs.ServiceParams{
		Repo:       gigs.NewRepository(dbClient.DB()),
		Transfers:  transfers,
		Dispatcher: dispatcher,
		Locker:     locker,
		Tx:         dbClient,
		Outbox:     outboxService,
		Clock:      clk,
		Metrics:    metrics.NewGigMetrics(reg),
		Logger:     logg,
		Config: gigs.Config{
			PayoutPolicy: policy,
			AmountScale:  cfg.Engine.AmountScale,
		},
	})
}

func buildLocker(cfg config.EngineConfig, logg *logger.Logger, redisClient *redis.Client) (gigs.Locker, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.LockBackend), config.LockBackendRedis) {
		return gigs.NewMemoryLocker(cfg.LockWait), nil
	}
	if redisClient == nil {
		return nil, errors.New("redis gig lock backend requires a redis connection")
	}
	locker, err := gigs.NewRedisLocker(redisClient, cfg.LockWait, cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	locker.OnReleaseError(func(err error) {
		logg.Error(context.Background(), "gig lock release failed", err)
	})
	return locker, nil
}
