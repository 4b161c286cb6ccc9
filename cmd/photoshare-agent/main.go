// Package main is the entrypoint for the photoshare agent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whitea-cloud/photoshare-go/internal/agent"
	"github.com/whitea-cloud/photoshare-go/internal/api"
	"github.com/whitea-cloud/photoshare-go/internal/approval"
	"github.com/whitea-cloud/photoshare-go/internal/auth"
	"github.com/whitea-cloud/photoshare-go/internal/cache"
	"github.com/whitea-cloud/photoshare-go/internal/config"
	"github.com/whitea-cloud/photoshare-go/internal/debug"
	"github.com/whitea-cloud/photoshare-go/internal/httpclient"
	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/notify"
	"github.com/whitea-cloud/photoshare-go/internal/state"
	"github.com/whitea-cloud/photoshare-go/internal/store"

	// Register cache and store drivers
	_ "github.com/whitea-cloud/photoshare-go/internal/cache/loader"
	_ "github.com/whitea-cloud/photoshare-go/internal/store/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	apiBaseURL := flag.String("api-base-url", "", "API origin (overrides config)")
	pushURL := flag.String("push-url", "", "WebSocket push base URL (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: json or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	debugAddr := flag.String("debug-addr", "", "Debug server listen address (enables the debug server)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	userID := flag.Int64("user-id", 0, "Messenger user id of the session")
	initData := flag.String("init-data", "", "Messenger init data for a fresh login (optional)")
	flag.Parse()

	// Bootstrap logger for config loading errors
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *userID == 0 {
		bootstrapLogger.Error("missing required flag: -user-id")
		os.Exit(1)
	}

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			APIBaseURL:   apiBaseURL,
			PushURL:      pushURL,
			StoreDriver:  storeDriver,
			DataDir:      dataDir,
			DebugAddr:    debugAddr,
			LoggingLevel: loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := logutil.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the durable client store
	st, err := store.Open(ctx, &store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Options: cfg.Store.Drivers,
	})
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Create cache (defaults to in-memory if not configured)
	cacheDriver := cfg.Cache.Driver
	if cacheDriver == "" {
		cacheDriver = "memory"
	}
	cacheInstance, err := cache.NewFromConfig(cacheDriver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Restore the persisted session, if any
	session := auth.NewSession(*userID, st, logger)
	if err := session.Load(ctx); err != nil {
		logger.Error("failed to load session", "error", err)
		os.Exit(1)
	}

	// REST client over the bounded outbound HTTP client
	client := api.New(&cfg.API, httpclient.New(&cfg.API), session, logger)
	client.SetCache(cacheInstance)

	app := state.NewApp()
	notifier := notify.NewLogNotifier(logger, true)

	a := agent.New(agent.Options{
		Config:    cfg,
		Client:    client,
		Session:   session,
		App:       app,
		Notifier:  notifier,
		Approvals: approval.New(st, logger),
		Logger:    logger,
	})

	// Debug server (localhost only)
	var debugSrv *debug.Server
	if cfg.Debug.Enabled {
		debugSrv = debug.New(cfg.Debug.ListenAddr, app, func() string {
			return string(a.PushStatus())
		}, logger)
		go func() {
			if err := debugSrv.Start(); err != nil {
				logger.Warn("debug server stopped", "error", err)
			}
		}()
	}

	// Establish the session: fresh login when init data is given,
	// otherwise resume from stored credentials.
	if *initData != "" {
		if _, err := a.Login(ctx, *initData); err != nil {
			logger.Error("login failed", "error", err)
			os.Exit(1)
		}
	} else if err := a.Resume(ctx); err != nil {
		logger.Error("failed to resume session, pass -init-data to log in", "error", err)
		os.Exit(1)
	}

	logger.Info("agent started", "mode", cfg.Mode, "user_id", *userID)

	// Proactive token refresh loop, blocks until shutdown
	a.Run(ctx)

	logger.Info("shutdown signal received")

	if debugSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("debug server shutdown error", "error", err)
		}
	}

	logger.Info("agent stopped")
}
