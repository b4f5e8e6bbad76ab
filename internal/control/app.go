// Package control wires the feed readers, stores, services and servers
// into a runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/explorer/internal/core/config"
	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/gateway"
	"github.com/vietddude/explorer/internal/indexing/bus"
	"github.com/vietddude/explorer/internal/indexing/feed"
	"github.com/vietddude/explorer/internal/indexing/health"
	"github.com/vietddude/explorer/internal/indexing/processor"
	"github.com/vietddude/explorer/internal/indexing/stats"
	"github.com/vietddude/explorer/internal/infra/cache"
	redisclient "github.com/vietddude/explorer/internal/infra/redis"
	"github.com/vietddude/explorer/internal/infra/rpc"
	"github.com/vietddude/explorer/internal/infra/storage"
	"github.com/vietddude/explorer/internal/infra/storage/memory"
	"github.com/vietddude/explorer/internal/infra/storage/postgres"
	"github.com/vietddude/explorer/internal/service"
)

// App is the main application struct that manages the explorer lifecycle.
type App struct {
	cfg          *config.AppConfig
	bus          *bus.Bus
	stores       *processor.Stores
	readers      []*feed.Reader
	services     *service.Services
	gateway      *gateway.Gateway
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	repos        storage.Repositories
	store        *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	local        *cache.Local
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Durable store and change feed
	var source feed.Source
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		a.repos = db.Repositories()
		source = postgres.NewFeedSource(db, cfg.Feed.PollInterval)
		a.log.Info("Using PostgreSQL storage")
	} else {
		a.store = memory.NewMemoryStorage()
		a.repos = a.store.Repositories()
		source = a.store.Changes()
		a.log.Info("Using Memory storage")
	}

	// 2. Cache store and resume tokens
	var (
		cacheStore cache.Store
		tokens     feed.TokenStore
	)
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, using local cache", "error", err)
		} else {
			a.redisClient = client
			cacheStore = redisclient.NewCache(client)
			tokens = redisclient.NewTokenStore(client)
		}
	}
	if cacheStore == nil {
		a.local = cache.NewLocal(10_000)
		cacheStore = a.local
	}

	// 3. Bus, recent stores and pipeline. The processor subscribes first
	// so pushes see the enriched block.
	a.bus = bus.New()
	a.stores = processor.NewStores(cfg.Stores.Blocks, cfg.Stores.Txs, cfg.Stores.PendingTxs, cfg.Stores.Uncles)
	processor.New(a.stores, stats.New()).Register(a.bus)

	hub := gateway.NewHub(a.stores.Blocks)
	hub.Register(a.bus)

	for _, entity := range domain.Entities {
		a.readers = append(a.readers, feed.NewReader(feed.Config{
			Entity:          entity,
			Collection:      cfg.Collection(entity),
			PollInterval:    cfg.Feed.PollInterval,
			CheckpointEvery: cfg.Feed.CheckpointEvery,
		}, source, tokens, a.bus))
	}

	// 4. Services and gateway
	var engine service.Engine
	if cfg.Engine.URL != "" {
		engine = rpc.NewClient(cfg.Engine)
	} else {
		a.log.Warn("No execution engine configured, balance and call requests will fail")
	}

	a.services = service.New(service.Deps{
		Repos:   a.repos,
		Stores:  a.stores,
		Cache:   cacheStore,
		PageTTL: cfg.Redis.PageTTL,
		Engine:  engine,
		Exchange: service.ExchangeConfig{
			MemoTTL:  cfg.Exchange.MemoTTL,
			RateTTL:  cfg.Exchange.RateTTL,
			Fallback: cfg.Exchange.Fallback,
		},
	})

	events, err := gateway.Events(a.services, cfg.Gateway.MaxPageSize)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	registry := gateway.NewRegistry()
	if err := registry.Register(events...); err != nil {
		a.closeResources()
		return nil, err
	}
	a.gateway = gateway.New(cfg.Gateway, registry, hub)

	// 5. Health
	reporters := make([]health.StatusReporter, len(a.readers))
	for i, r := range a.readers {
		reporters[i] = r
	}
	a.healthMon = health.NewMonitor(reporters, a.stores)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)
	a.healthServer.Mount(cfg.Server.WSPath, a.gateway)
	if cfg.Server.GRPCPort > 0 {
		a.grpcServer = health.NewGRPCServer(a.healthMon, cfg.Server.GRPCPort)
	}

	return a, nil
}

// Repositories returns the durable store repositories.
func (a *App) Repositories() storage.Repositories { return a.repos }

// Handler returns the HTTP handler serving health, metrics and the gateway.
func (a *App) Handler() http.Handler { return a.healthServer.Handler() }

// Health returns the current health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Start starts the servers and one goroutine per feed reader. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.grpcServer != nil {
		go func() {
			if err := a.grpcServer.Start(); err != nil {
				a.log.Error("gRPC health server failed", "error", err)
			}
		}()
		go a.grpcServer.Run(ctx, 5*time.Second)
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	for _, r := range a.readers {
		a.log.Info("Starting feed reader", "entity", r.Entity())
		a.wg.Add(1)
		go func(r *feed.Reader) {
			defer a.wg.Done()
			if err := r.Start(ctx); err != nil {
				a.log.Error("Feed reader failed", "entity", r.Entity(), "error", err)
			}
		}(r)
	}

	return nil
}

// Stop stops the readers, disconnects clients and releases every resource.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping explorer...")

	for _, r := range a.readers {
		r.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	var errs []error
	if err := a.gateway.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	a.services.Stop()
	a.closeResources()

	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.local != nil {
		a.local.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
