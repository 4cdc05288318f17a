package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crypto_terminal/internal/alert"
	"crypto_terminal/internal/api"
	"crypto_terminal/internal/depth"
	"crypto_terminal/internal/engine"
	"crypto_terminal/internal/infra"
	"crypto_terminal/internal/infra/cache"
	"crypto_terminal/internal/infra/feed"
	"crypto_terminal/internal/infra/storage"
	"crypto_terminal/internal/precision"
	"crypto_terminal/internal/reconcile"
	"crypto_terminal/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.IconDownloader
	Cache      *cache.RedisCache

	Registry  *precision.Registry
	Tickers   *service.TickerService
	Alerts    *alert.Engine
	Sequencer *engine.Sequencer
	Feed      *feed.Client
	API       *api.Server

	configPath string
	ctx        context.Context
	stopCore   context.CancelFunc
	logger     *slog.Logger

	// Asset sync state. pendingAssets holds the newest list received while a
	// sync was running; it is synced next.
	syncMu        sync.Mutex
	syncing       bool
	pendingAssets []string
	syncWG        sync.WaitGroup
	runSync       func(ctx context.Context, assets []string)
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	b := &Bootstrap{
		configPath: configPath,
		logger:     slog.Default().With("module", "bootstrap"),
	}
	b.runSync = b.SyncAssets
	return b
}

// Initialize loads configuration, opens the stores and builds every
// component. Nothing runs until Start.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping terminal core...")
	b.ctx = ctx

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	b.logger = slog.Default().With("module", "bootstrap")

	// 3. Initialize Storage (DB)
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	b.Storage = store
	b.logger.Info("✅ Database initialized", slog.String("driver", cfg.Storage.Driver))

	// 4. Initialize Icon Downloader
	if cfg.Assets.SyncIcons {
		downloader, err := infra.NewIconDownloader(cfg.Assets.IconDir, cfg.Assets.IconURL, store)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		b.logger.Info("✅ Icon downloader ready")
	}

	// 5. Optional snapshot cache
	if cfg.Cache.Enabled {
		c := cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.CacheTTL())
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.Ping(pingCtx)
		cancel()
		if err != nil {
			// The terminal works without the mirror
			b.logger.Warn("Redis unavailable, snapshot cache disabled", slog.Any("error", err))
			_ = c.Close()
		} else {
			b.Cache = c
			b.logger.Info("✅ Snapshot cache connected", slog.String("addr", cfg.Cache.Addr))
		}
	}

	b.buildCore(ctx)
	return nil
}

// buildCore wires the reconciliation pipeline.
func (b *Bootstrap) buildCore(ctx context.Context) {
	cfg := b.Config
	metrics := infra.GlobalMetrics

	b.Registry = precision.NewRegistry()
	b.Tickers = service.NewTickerService()
	b.restoreFavorites()

	b.Alerts = alert.NewEngine(b.Storage, infra.NewLogNotifier())
	b.Alerts.SetRecorder(metrics)
	n := b.Alerts.Load(ctx)
	b.logger.Info("✅ Alerts restored", slog.Int("count", n))

	deps := engine.Deps{
		Registry:   b.Registry,
		Reconciler: reconcile.NewReconciler(b.Registry),
		Depth:      depth.NewAggregator(cfg.Depth.Levels),
		Tickers:    b.Tickers,
		Alerts:     b.Alerts,
		Candles:    b.Storage,
		Metrics:    metrics,
		DumpPath:   cfg.App.DumpPath,
	}
	if b.Cache != nil {
		deps.Publisher = b.Cache
	}
	if b.Downloader != nil {
		deps.OnFilters = b.onFilters
	}
	b.Sequencer = engine.NewSequencer(cfg.App.InboxSize, deps)

	b.Feed = feed.NewClient(feed.Options{
		URL:              cfg.Feed.WSURL,
		Subscribe:        cfg.Feed.Subscribe,
		Symbols:          cfg.Feed.Symbols,
		PingInterval:     time.Duration(cfg.Feed.PingIntervalSec) * time.Second,
		MaxBackoff:       cfg.MaxBackoff(),
		CircuitThreshold: cfg.Feed.CircuitThreshold,
		Metrics:          metrics,
	}, b.Sequencer.Inbox())

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Sequencer: b.Sequencer,
			Registry:  b.Registry,
			Alerts:    b.Alerts,
			Tickers:   b.Tickers,
			Candles:   b.Storage,
			Sender:    b.Feed,
			Settings:  b.Storage,
			Assets:    b.Storage,
			Metrics:   metrics,
		}
		if b.Cache != nil {
			apiDeps.Ladders = b.Cache
		}
		b.API = api.NewServer(apiDeps)
	}
}

// restoreFavorites reloads the favorites saved through the API.
func (b *Bootstrap) restoreFavorites() {
	settings, err := b.Storage.LoadConfigMap()
	if err != nil {
		b.logger.Warn("Failed to load settings", slog.Any("error", err))
		return
	}
	for _, s := range strings.Split(settings[api.FavoritesKey], ",") {
		if s = strings.TrimSpace(s); s != "" {
			b.Tickers.SetFavorite(s, true)
		}
	}
}

// Start runs the sequencer, connects the feed and serves the API.
func (b *Bootstrap) Start(ctx context.Context) error {
	coreCtx, stop := context.WithCancel(ctx)
	b.stopCore = stop
	go b.Sequencer.Run(coreCtx)

	if err := b.Feed.Connect(ctx); err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	if b.API != nil {
		b.API.Start(b.Config.API.Listen)
	}

	b.logger.Info("✨ Terminal core operational", slog.String("feed", b.Config.Feed.WSURL))
	return nil
}

// onFilters runs on the sequencer goroutine, so the sync itself is moved
// off it. While a sync is running only the newest list is kept, and it is
// synced as soon as the running one finishes.
func (b *Bootstrap) onFilters(assets []string) {
	b.syncMu.Lock()
	if b.syncing {
		b.pendingAssets = assets
		b.syncMu.Unlock()
		return
	}
	b.syncing = true
	b.syncMu.Unlock()

	b.syncWG.Add(1)
	go b.syncLoop(assets)
}

func (b *Bootstrap) syncLoop(assets []string) {
	defer b.syncWG.Done()
	for {
		b.runSync(b.ctx, assets)

		b.syncMu.Lock()
		if b.pendingAssets == nil {
			b.syncing = false
			b.syncMu.Unlock()
			return
		}
		assets, b.pendingAssets = b.pendingAssets, nil
		b.syncMu.Unlock()
	}
}

// SyncAssets records the active base assets and downloads missing icons.
func (b *Bootstrap) SyncAssets(ctx context.Context, assets []string) {
	if b.Downloader == nil {
		return
	}
	b.logger.Info("🔄 Starting asset synchronization...", slog.Int("assets", len(assets)))

	fetched, err := b.Downloader.SyncAssets(ctx, assets)
	if err != nil {
		b.logger.Error("Asset synchronization failed", slog.Any("error", err))
		return
	}
	b.logger.Info("✨ Asset synchronization completed", slog.Int("fetched", fetched))
}

// Shutdown stops every component in reverse start order and flushes
// pending background writes before closing the stores. The sequencer loop
// is stopped first so no write is queued during the flush.
func (b *Bootstrap) Shutdown(ctx context.Context) {
	if b.API != nil {
		if err := b.API.Shutdown(ctx); err != nil {
			b.logger.Warn("API shutdown", slog.Any("error", err))
		}
	}
	if b.Feed != nil {
		b.Feed.Disconnect()
	}

	if b.stopCore != nil {
		b.stopCore()
		select {
		case <-b.Sequencer.Stopped():
		case <-ctx.Done():
			b.logger.Warn("Sequencer did not stop before the deadline")
		}
	}
	b.syncWG.Wait()
	if b.Sequencer != nil {
		b.Sequencer.Flush()
	}
	if b.Alerts != nil {
		b.Alerts.Wait()
	}

	if b.Cache != nil {
		_ = b.Cache.Close()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			b.logger.Warn("Storage close", slog.Any("error", err))
		}
	}
	b.logger.Info("👋 Shutdown complete")
}
