package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/giftbasket/giftcart/api/controllers"
	"github.com/giftbasket/giftcart/api/routes"
	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/catalog"
	"github.com/giftbasket/giftcart/internal/checkout"
	"github.com/giftbasket/giftcart/internal/cron"
	"github.com/giftbasket/giftcart/internal/delivery"
	"github.com/giftbasket/giftcart/internal/sessions"
	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/config"
	"github.com/giftbasket/giftcart/pkg/db"
	"github.com/giftbasket/giftcart/pkg/logger"
	"github.com/giftbasket/giftcart/pkg/metrics"
	"github.com/giftbasket/giftcart/pkg/migrate"
	"github.com/giftbasket/giftcart/pkg/redis"
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
		Format:      cfg.App.LogFormat,
	})

	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
	}

	var dbClient *db.Client
	if cfg.Cart.UsesSQL() {
		dbClient, err = db.New(context.Background(), cfg.DB, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap database", err)
			os.Exit(1)
		}
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
	}

	storage, snapshotRepo, err := buildStorage(cfg, redisClient, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart storage", err)
		os.Exit(1)
	}

	backendClient, err := backend.NewClient(
		cfg.Backend.BaseURL,
		backend.WithAPIKey(cfg.Backend.APIKey),
		backend.WithTimeout(cfg.Backend.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create backend client", err)
		os.Exit(1)
	}

	cacheParams := catalog.CacheParams{Source: backendClient, TTL: cfg.Catalog.CacheTTL, Logger: logg}
	if redisClient != nil {
		cacheParams.Store = redisClient
	}
	catalogCache, err := catalog.NewCache(cacheParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog cache", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(registry)
	jobMetrics := metrics.NewJobMetrics(registry)

	sessionManager, err := sessions.NewManager(sessions.ManagerParams{
		Storage:     storage,
		Catalog:     catalogCache,
		Orders:      backendClient,
		Keys:        redis.Keys{},
		Logger:      logg,
		Metrics:     cartMetrics,
		Debounce:    cfg.Cart.SyncDebounce,
		SyncTimeout: cfg.Cart.SyncTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	location, err := cfg.Delivery.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to load delivery timezone", err)
		os.Exit(1)
	}
	deliveryEngine, err := delivery.NewEngine(delivery.WithLocation(location))
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery engine", err)
		os.Exit(1)
	}

	finalizer, err := checkout.NewFinalizer(checkout.FinalizerParams{
		Orders:   backendClient,
		Delivery: deliveryEngine,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order finalizer", err)
		os.Exit(1)
	}

	loops, err := buildMaintenance(cfg, logg, jobMetrics, sessionManager, snapshotRepo, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance loops", err)
		os.Exit(1)
	}

	var deps []controllers.Dependency
	if redisClient != nil {
		deps = append(deps, controllers.Dependency{Name: "redis", Pinger: redisClient})
	}
	if dbClient != nil {
		deps = append(deps, controllers.Dependency{Name: "db", Pinger: dbClient})
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"storage": cfg.Cart.Storage,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, sessionManager, deliveryEngine, finalizer, catalogCache, registry, deps...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, loop := range loops {
		loop := loop
		group.Go(func() error {
			if err := loop.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := group.Wait()

	// Sessions flush their pending draft syncs before the connections go away.
	sessionManager.Close()
	closeErr := closeAll(redisClient, dbClient)

	if err := multierr.Combine(runErr, closeErr); err != nil {
		logg.Error(ctx, "api server stopped with errors", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func buildStorage(cfg *config.Config, redisClient *redis.Client, dbClient *db.Client) (cart.Storage, *cart.SnapshotRepository, error) {
	if cfg.Cart.UsesSQL() {
		repo, err := cart.NewSnapshotRepository(dbClient.DB(), cfg.Cart.SnapshotTTL)
		if err != nil {
			return nil, nil, err
		}
		return cart.NewQuotaStorage(repo, cfg.Cart.StorageQuotaBytes), repo, nil
	}
	redisStorage, err := cart.NewRedisStorage(redisClient, cfg.Cart.SnapshotTTL)
	if err != nil {
		return nil, nil, err
	}
	return cart.NewQuotaStorage(redisStorage, cfg.Cart.StorageQuotaBytes), nil, nil
}

// buildMaintenance returns the per-process session eviction loop and, for SQL
// storage, the snapshot purge loop guarded by a cluster-wide lock.
func buildMaintenance(
	cfg *config.Config,
	logg *logger.Logger,
	jobMetrics *metrics.JobMetrics,
	sessionManager *sessions.Manager,
	snapshotRepo *cart.SnapshotRepository,
	redisClient *redis.Client,
) ([]*cron.Service, error) {
	evictionJob, err := cron.NewSessionEvictionJob(cron.SessionEvictionJobParams{
		Logger:   logg,
		Sessions: sessionManager,
		MaxIdle:  cfg.Cart.SessionIdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	sessionLoop, err := cron.NewService(cron.ServiceParams{
		Name:     "cart-sessions",
		Logger:   logg,
		Registry: cron.NewRegistry(evictionJob),
		Metrics:  jobMetrics,
		Interval: cfg.Cart.MaintenanceInterval,
	})
	if err != nil {
		return nil, err
	}
	loops := []*cron.Service{sessionLoop}

	if snapshotRepo == nil {
		return loops, nil
	}

	purgeJob, err := cron.NewSnapshotPurgeJob(cron.SnapshotPurgeJobParams{Logger: logg, Repository: snapshotRepo})
	if err != nil {
		return nil, err
	}
	var lock cron.Lock = &cron.LocalLock{}
	if redisClient != nil {
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("snapshot-purge:"+cfg.App.Env), 0)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}
	purgeLoop, err := cron.NewService(cron.ServiceParams{
		Name:     "cart-snapshots",
		Logger:   logg,
		Registry: cron.NewRegistry(purgeJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cart.SnapshotPurgeInterval,
	})
	if err != nil {
		return nil, err
	}
	return append(loops, purgeLoop), nil
}

func closeAll(redisClient *redis.Client, dbClient *db.Client) error {
	var err error
	if redisClient != nil {
		err = multierr.Append(err, redisClient.Close())
	}
	if dbClient != nil {
		err = multierr.Append(err, dbClient.Close())
	}
	return err
}
