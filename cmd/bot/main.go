package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voicestats/internal/analytics"
	"voicestats/internal/config"
	"voicestats/internal/database"
	"voicestats/internal/discord"
	"voicestats/internal/telemetry"
	"voicestats/internal/tracker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const dispatchBuffer = 256

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	telemetry.Init()

	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "voicestats", version)
	if err != nil {
		slog.Warn("tracing unavailable", slog.Any("err", err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	// Initialize database
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("failed to initialize database", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ga := analytics.New(cfg.AnalyticsTrackingID, analytics.WithLogger(logger))
	if !ga.Enabled() {
		slog.Info("analytics disabled: GA_TRACKING_ID not set")
	}

	bot, err := discord.New(discord.Options{
		Token:               cfg.DiscordToken,
		CommandPrefix:       cfg.CommandPrefix,
		StartupSweepTimeout: cfg.StartupSweepTimeout,
		Logger:              logger,
	}, database.NewRepository(db), ga)
	if err != nil {
		slog.Error("failed to create Discord bot", slog.Any("err", err))
		os.Exit(1)
	}

	trk := tracker.New(database.NewSessionStore(db), bot.Presence(),
		tracker.WithStoreTimeout(cfg.StoreTimeout),
		tracker.WithLogger(logger))
	reconciler := tracker.NewReconciler(trk, tracker.ReconcilerConfig{
		Interval:     cfg.ReconcileInterval,
		Concurrency:  cfg.SweepConcurrency,
		PruneOrphans: cfg.PruneOrphans,
	})
	trk.SetDiscrepancyHandler(func() { reconciler.Trigger(ctx, "discrepancy") })

	dispatcher := tracker.NewDispatcher(trk, cfg.DispatchWorkers, dispatchBuffer)
	// Workers outlive the signal so queued transitions drain on shutdown.
	dispatcher.Start(context.WithoutCancel(ctx))

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server error", slog.Any("err", err))
			}
		}()
	}

	// Start bot
	if err := bot.Start(dispatcher, func() { reconciler.Trigger(ctx, "startup") }); err != nil {
		slog.Error("failed to start bot", slog.Any("err", err))
		dispatcher.Stop()
		os.Exit(1)
	}
	reconciler.Start(ctx)

	<-ctx.Done()
	slog.Info("shutting down bot")

	reconciler.Stop()
	if err := bot.Stop(); err != nil {
		slog.Error("failed to close Discord session", slog.Any("err", err))
	}
	dispatcher.Stop()
	ga.Close()
	slog.Info("shutdown complete", slog.Int("open_sessions", trk.IndexLen()))
}
