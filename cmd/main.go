package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/okian/skyrank/internal/adapters/http/api"
	"github.com/okian/skyrank/internal/adapters/http/swagger"
	"github.com/okian/skyrank/internal/adapters/legacy"
	"github.com/okian/skyrank/internal/adapters/metadata"
	app "github.com/okian/skyrank/internal/app"
	"github.com/okian/skyrank/internal/config"
	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/scoring"
	"github.com/okian/skyrank/pkg/logger"
	"github.com/okian/skyrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// The service exports its own runtime gauges.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger is not configured yet.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, closeBackends, err := newService(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Error(err))
		return
	}
	defer closeBackends()

	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// newService wires the registry, scoring, and the optional relational and
// metadata backends into a ranking service. The returned func closes the
// backends.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func(), error) {
	defs, funcs := scoring.Split(scoring.Catalog())
	registry := leaderboard.NewRegistry()
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return nil, nil, err
		}
	}
	if err := registry.MarkLegacy(cfg.LegacyLeaderboards...); err != nil {
		return nil, nil, err
	}

	extractor := scoring.NewExtractor(
		scoring.WithConfig(scoring.Config{
			CropDivisors:        cfg.CropDivisors,
			FarmingLevel50Bonus: cfg.FarmingLevel50Bonus,
			FarmingLevel60Bonus: cfg.FarmingLevel60Bonus,
		}),
		scoring.WithFuncs(funcs),
	)

	opts := []app.Option{
		app.WithLogger(log),
		app.WithRegistry(registry),
		app.WithExtractor(extractor),
		app.WithGameModes(cfg.GameModes),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxSliceLimit(cfg.MaxSliceLimit),
		app.WithDefaultUpcoming(cfg.DefaultUpcoming),
		app.WithMultiRankConcurrency(cfg.MultiRankConcurrency),
		app.WithRolloverInterval(cfg.RolloverCheckInterval),
		app.WithWarmOnMiss(cfg.WarmOnMiss),
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		db, err := legacy.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		opts = append(opts, app.WithLegacy(
			legacy.NewAdapter(db),
			legacy.NewLoader(db, legacy.WithPageSize(cfg.WarmPageSize)),
		))
		log.Info(ctx, "relational store connected", logger.Strings("legacy_leaderboards", cfg.LegacyLeaderboards))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		closers = append(closers, func() { _ = client.Close() })
		opts = append(opts, app.WithMetadata(metadata.NewRedis(client)))
		log.Info(ctx, "metadata cache configured", logger.String("addr", cfg.RedisAddr))
	}

	return app.New(opts...), closeAll, nil
}

// newMux registers the API and the API docs.
func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxBodyBytes).Register(mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the queue and partition gauges. GetStats
// sets them as a side effect.
func updateServiceMetrics(svc *app.Service) {
	_ = svc.GetStats()
}
