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

	"github.com/okian/conjunct/internal/adapters/catalog"
	"github.com/okian/conjunct/internal/adapters/http/api"
	"github.com/okian/conjunct/internal/adapters/repository"
	app "github.com/okian/conjunct/internal/app"
	"github.com/okian/conjunct/internal/config"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	day                   = 24 * time.Hour
)

func main() {
	// Metrics live on a custom registry; keep the default one empty.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "conjunct stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store := repository.NewMemoryStore(ctx)
	defer func() { _ = store.Close() }()

	loader := catalog.NewLoader(store, catalog.WithLogger(log.Named("catalog")))
	if err := seedCatalog(ctx, loader, cfg, log); err != nil {
		return err
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := newHTTPServer(cfg, svc)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	screenAndClean(ctx, cfg, svc, log)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			runErr = err
			break loop
		case <-hup:
			log.Info(ctx, "SIGHUP received, reloading catalog")
			if err := seedCatalog(ctx, loader, cfg, log); err != nil {
				log.Error(ctx, "catalog reload failed", logger.Error(err))
				continue
			}
			screenAndClean(ctx, cfg, svc, log)
		}
	}

	log.Info(ctx, "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return runErr
}

// seedCatalog loads the configured catalog and TLE files; both are optional.
func seedCatalog(ctx context.Context, loader *catalog.Loader, cfg *config.Config, log logger.Logger) error {
	if cfg.CatalogPath == "" && cfg.TLEPath == "" {
		log.Warn(ctx, "no catalog_path or tle_path configured; starting with an empty catalog")
		return nil
	}
	_, err := loader.Load(ctx, cfg.CatalogPath, cfg.TLEPath)
	return err
}

// screenAndClean runs one full screening pass under the configured
// deadline, then applies retention.
func screenAndClean(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) {
	sctx, cancel := context.WithTimeout(ctx, cfg.ScreeningTimeout)
	defer cancel()

	start := time.Now()
	results, err := svc.ScreenAll(sctx)
	if err != nil {
		log.Error(ctx, "screening finished with errors", logger.Error(err))
	}
	var created, updated, retired int
	for _, r := range results {
		created += r.EventsCreated
		updated += r.EventsUpdated
		retired += r.EventsRetired
	}
	log.Info(ctx, "screening finished",
		logger.Int("satellites", len(results)),
		logger.Int("events_created", created),
		logger.Int("events_updated", updated),
		logger.Int("events_retired", retired),
		logger.Duration("took", time.Since(start)),
	)

	res, err := svc.Cleanup(ctx)
	if err != nil {
		log.Error(ctx, "retention cleanup failed", logger.Error(err))
		return
	}
	log.Info(ctx, "retention cleanup done",
		logger.Int("orbit_states", res.OrbitStates),
		logger.Int("tle_records", res.TleRecords),
	)
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithHorizonDays(cfg.ScreeningHorizonDays),
		app.WithScreeningVolume(cfg.ScreeningVolumeKm),
		app.WithAltitudeWindow(cfg.AltitudeWindowKm),
		app.WithMatchWindow(cfg.MatchWindow()),
		app.WithConcurrency(cfg.ScreeningConcurrency),
		app.WithThresholds(cfg.Thresholds()),
		app.WithRetention(
			time.Duration(cfg.OrbitStateRetentionDays)*day,
			time.Duration(cfg.TLERecordRetentionDays)*day,
		),
	}
	if cfg.CDMInboxDir != "" {
		opts = append(opts, app.WithInbox(cfg.CDMInboxDir, cfg.CDMExtensions...))
	}
	return app.New(store, opts...)
}

func newHTTPServer(cfg *config.Config, svc *app.Service) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, api.WithRequestTimeout(writeTimeout)).Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
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

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
