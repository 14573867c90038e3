package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/rokuonkun/external/audio"
	configloader "github.com/foxseedlab/rokuonkun/external/config"
	"github.com/foxseedlab/rokuonkun/external/discord"
	identityimpl "github.com/foxseedlab/rokuonkun/external/identity"
	repositoryimpl "github.com/foxseedlab/rokuonkun/external/repository"
	transcriberimpl "github.com/foxseedlab/rokuonkun/external/transcriber"
	webhookimpl "github.com/foxseedlab/rokuonkun/external/webhook"
	"github.com/foxseedlab/rokuonkun/internal/config"
	discordpkg "github.com/foxseedlab/rokuonkun/internal/discord"
	"github.com/foxseedlab/rokuonkun/internal/metrics"
	"github.com/foxseedlab/rokuonkun/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownTimeout       = 30 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "session_mode", cfg.SessionMode, "audio_format", cfg.AudioFormat)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	startMetricsServer(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, metrics.New())
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	identityimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func startMetricsServer(cfg *config.Config) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}

	manager.RecoverOrphans(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(ctx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")

	// Empty guild id registers the commands globally across all guilds.
	if err := dc.UpsertGuildSlashCommands("", session.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err)
		os.Exit(1)
	}

	manager.Register()
	slog.Info("discord handlers registered", "commands", []string{
		session.CommandRecord, session.CommandStop, session.CommandRefreshPlayers,
	})
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down: finalizing active sessions")
	case <-done:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)
	slog.Info("shutdown complete")
}
