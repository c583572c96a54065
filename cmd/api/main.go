package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/config"
	"github.com/hamed0406/healthwatch/internal/engine"
	"github.com/hamed0406/healthwatch/internal/httpapi"
	apimw "github.com/hamed0406/healthwatch/internal/httpapi/middleware"
	"github.com/hamed0406/healthwatch/internal/hub"
	"github.com/hamed0406/healthwatch/internal/logging"
	"github.com/hamed0406/healthwatch/internal/notify"
	"github.com/hamed0406/healthwatch/internal/probe"
	"github.com/hamed0406/healthwatch/internal/repo/postgres"
	"github.com/hamed0406/healthwatch/internal/scheduler"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archive *postgres.Store
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("db_migrate_error", zap.Error(err))
		}
		archive, err = postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("db_connect_error", zap.Error(err))
		}
		defer archive.Close()
		logger.Info("incident_journal_enabled")
	} else {
		logger.Warn("incident_journal_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	deps := engine.Deps{
		Logger: logger,
		Prober: probe.NewHTTPProber(logger, cfg.RetryBackoff),
	}
	if archive != nil {
		deps.Archive = archive
	}
	eng := engine.New(engine.Config{
		IncidentThreshold:       cfg.IncidentThreshold,
		RecoveryThreshold:       cfg.RecoveryThreshold,
		ResultCapacity:          cfg.ResultCapacity,
		ResultRetention:         cfg.ResultRetention,
		IncidentRetention:       cfg.IncidentRetention,
		MetricsWindow:           cfg.MetricsWindow,
		CleanupInterval:         cfg.CleanupInterval,
		MaintenanceSyncInterval: cfg.MaintenanceSyncInterval,
		Locations:               cfg.ProbeLocations,
		EventBuffer:             cfg.EventBuffer,
	}, deps)

	if cfg.ChecksFile != "" {
		loadChecks(logger, eng, cfg.ChecksFile)
	}

	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		eng.Subscribe("slack", s)
	}
	if wh := notify.NewWebhook(cfg.AlertWebhook); wh != nil {
		eng.Subscribe("webhook", wh)
	}
	if archive != nil {
		eng.Subscribe("journal", scheduler.JournalSink(archive))
	}

	h := hub.New(logger, cfg.AllowedOrigins)
	eng.Subscribe("websocket", h)

	api := httpapi.NewServer(logger, eng, h)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil {
			logger.Error("engine_error", zap.Error(err))
			stop()
		}
	}()
	go func() { defer wg.Done(); h.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api_listen_error", zap.Error(err))
		stop()
	}

	wg.Wait()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := eng.FlushEvents(flushCtx)
	logger.Info("api_stopped", zap.Int("events_flushed", n))
}

// loadChecks registers every check and window from the YAML file. Problems
// are logged; valid entries still load.
func loadChecks(logger *zap.Logger, eng *engine.Engine, path string) {
	f, err := config.LoadFile(path)
	if err != nil {
		logger.Error("checks_file_error", zap.String("path", path), zap.Error(err))
	}
	for _, c := range f.Checks {
		if _, err := eng.RegisterCheck(c); err != nil {
			logger.Error("check_register_error", zap.String("check_id", string(c.ID)), zap.Error(err))
		}
	}
	for _, w := range f.Maintenance {
		if _, err := eng.ScheduleMaintenance(w); err != nil {
			logger.Error("maintenance_schedule_error", zap.String("name", w.Name), zap.Error(err))
		}
	}
	logger.Info("checks_file_loaded", zap.String("path", path), zap.Int("checks", len(f.Checks)), zap.Int("maintenance", len(f.Maintenance)))
}
