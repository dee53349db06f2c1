package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sydlexius/playbill/internal/api"
	"github.com/sydlexius/playbill/internal/backup"
	"github.com/sydlexius/playbill/internal/config"
	"github.com/sydlexius/playbill/internal/database"
	"github.com/sydlexius/playbill/internal/editcache"
	"github.com/sydlexius/playbill/internal/event"
	"github.com/sydlexius/playbill/internal/identity"
	"github.com/sydlexius/playbill/internal/logging"
	"github.com/sydlexius/playbill/internal/maintenance"
	"github.com/sydlexius/playbill/internal/mediaserver"
	"github.com/sydlexius/playbill/internal/provider"
	"github.com/sydlexius/playbill/internal/provider/douban"
	"github.com/sydlexius/playbill/internal/provider/tmdb"
	"github.com/sydlexius/playbill/internal/reconcile"
	"github.com/sydlexius/playbill/internal/runlog"
	"github.com/sydlexius/playbill/internal/runner"
	"github.com/sydlexius/playbill/internal/translation"
	"github.com/sydlexius/playbill/internal/version"
	"github.com/sydlexius/playbill/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("PB_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(cfg.Logging)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Stores
	identities := identity.NewStore(db)
	translations := translation.NewCache(db)
	logs := runlog.NewStore(db)

	// Provider clients share one rate limiter map
	rateLimiters := provider.NewRateLimiterMap()
	rateLimiters.SetLimit(provider.NameDouban, time.Duration(cfg.Douban.CooldownMS)*time.Millisecond)

	serverClient := mediaserver.New(cfg.MediaServer.URL, cfg.MediaServer.APIKey, cfg.MediaServer.UserID, logger)
	tmdbClient := tmdb.New(cfg.TMDB.APIKey, rateLimiters, logger)
	doubanClient := douban.New(rateLimiters, logger)

	// Translation engine (optional)
	var translator translation.Engine
	if cfg.Translator.Enabled && cfg.Translator.APIKey != "" {
		var opts []translation.OpenAIOption
		if cfg.Translator.BaseURL != "" {
			opts = append(opts, translation.WithBaseURL(cfg.Translator.BaseURL))
		}
		if cfg.Translator.Model != "" {
			opts = append(opts, translation.WithModel(cfg.Translator.Model))
		}
		if cfg.Translator.Prompt != "" {
			opts = append(opts, translation.WithPrompt(cfg.Translator.Prompt))
		}
		translator = translation.NewOpenAIEngine(cfg.Translator.APIKey, logger, opts...)
	}

	// Event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	eventLogger := logger.With(slog.String("component", "events"))
	for _, t := range []event.Type{event.RunStarted, event.RunCompleted, event.ReviewNeeded, event.CastEdited} {
		eventBus.Subscribe(t, func(e event.Event) {
			eventLogger.Info(string(e.Type), slog.Any("data", e.Data))
		})
	}

	// Reconciler
	reconciler := reconcile.New(db, identities, translations, logs,
		serverClient, tmdbClient, doubanClient, translator, eventBus, logger,
		reconcile.Options{
			MaxCastSize:       cfg.Reconcile.MaxCastSize,
			MinScoreForReview: cfg.Reconcile.MinScoreForReview,
			TranslatorEnabled: translator != nil,
			TranslatorMode:    translation.Mode(cfg.Translator.Mode),
		})

	// Runner and schedule
	runnerService := runner.NewService(serverClient, reconciler, logs, logger,
		time.Duration(cfg.Reconcile.DelayBetweenItemMS)*time.Millisecond,
		cfg.Reconcile.Libraries)
	runnerService.SetEventBus(eventBus)

	if cfg.Schedule.Enabled {
		scheduler, err := runner.NewScheduler(runnerService, logger, cfg.Schedule.Cron)
		if err != nil {
			return fmt.Errorf("configuring schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Manual edit sessions
	editSessions := editcache.New(0, 0)
	defer editSessions.Stop()

	// Database backups and maintenance
	backupDir := cfg.Backup.Path
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	}
	backupService := backup.NewService(db, backupDir, cfg.Backup.RetentionCount, logger)
	maintenanceService := maintenance.NewService(db, cfg.Database.Path, logger)

	logger.Info("starting playbill",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// HTTP router
	router := api.NewRouter(api.RouterDeps{
		Processor:    reconciler,
		Runner:       runnerService,
		EditSessions: editSessions,
		Translations: translations,
		Logs:         logs,
		Backups:      backupService,
		Maintenance:  maintenanceService,
		Logger:       logger,
		BasePath:     cfg.Server.BasePath,
		APIToken:     cfg.Server.APIToken,
	})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Backup.Enabled {
		go backupService.StartScheduler(ctx, time.Duration(cfg.Backup.IntervalHours)*time.Hour)
	}
	if cfg.Maintenance.Enabled {
		go maintenanceService.StartScheduler(ctx, time.Duration(cfg.Maintenance.IntervalHours)*time.Hour)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Config reload: logging changes apply at runtime.
	configWatcher := watcher.NewService(configPath, func(newCfg *config.Config) {
		logManager.Reconfigure(newCfg.Logging)
	}, eventBus, logger)
	go configWatcher.Start(ctx)

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	runnerService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
