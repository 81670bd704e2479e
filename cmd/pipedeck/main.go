package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipedeck/pipedeck/internal/auth"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/config"
	"github.com/pipedeck/pipedeck/internal/credentials"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/notify"
	"github.com/pipedeck/pipedeck/internal/pipeline"
	"github.com/pipedeck/pipedeck/internal/state"
	"github.com/pipedeck/pipedeck/internal/store"
	"github.com/pipedeck/pipedeck/internal/ui"
	"github.com/pipedeck/pipedeck/internal/vault"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(config.New())
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Verbose {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.Open(ctx, cfg.StorageDriver, cfg.DataDir, cfg.StorageDSN)
	if err != nil {
		logger.Error("Failed to initialize store", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer dbStore.Close()
	logger.Info("Using store", "driver", cfg.StorageDriver)

	sealer, err := credentials.NewService(cfg.EncryptionKey, cfg.KeyFile(credentials.KeyFileName))
	if err != nil {
		logger.Error("Failed to initialize session encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Session encryption is enabled", "source", sealer.KeySource())

	app := state.New()
	gateway := auth.NewGateway(dbStore, app, sealer, logger)

	tracker := client.NewTracker(nil)
	apiClient := client.New(cfg.URL, gateway,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger),
		client.WithProgress(tracker),
	)
	// Console requests carry their browser's session, so the process-wide
	// session is never restored here.
	gateway.SetClient(apiClient)

	center := notify.NewCenter(notify.DefaultCenterSize)
	presenter := notify.NewPresenter(center, cfg.NotifyDuration, logger)

	uiHandler, err := ui.NewHandler(ui.Handler{
		Menu:      menu.Default(),
		Pipelines: pipeline.NewHelper(apiClient, app, presenter, logger),
		Vault:     vault.New(apiClient, presenter, logger),
		Auth:      gateway,
		Notifier:  presenter,
		Center:    center,
		Progress:  tracker,
		Settings: ui.SettingsView{
			BackendURL:    cfg.URL,
			StorageDriver: cfg.StorageDriver,
			DataDir:       cfg.DataDir,
			KeySource:     sealer.KeySource(),
			PollInterval:  cfg.PollInterval,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to initialize UI handler", "error", err)
		os.Exit(1)
	}

	router, err := uiHandler.Router()
	if err != nil {
		logger.Error("Failed to build routes", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if n := app.ClearIntervals(); n > 0 {
			logger.Info("Stopped pollers", "count", n)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting console", "addr", cfg.Listen, "backend", cfg.URL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
