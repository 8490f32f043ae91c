package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/originalmmd/rift-robotics-ai/internal/app"
	"github.com/originalmmd/rift-robotics-ai/internal/config"
	"github.com/originalmmd/rift-robotics-ai/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func runServe(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "rift.yaml", "path to the YAML configuration file")
	envFile := fs.StringP("env-file", "e", "", "dotenv file with RIFT_* overrides; variables already set win")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(stderr, "rift: load env file: %v\n", err)
			return 1
		}
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, ok := loadConfig(*configPath, stderr)
	if !ok {
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := newLogger(stderr, cfg.Server.LogLevel)
	slog.Info("rift starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"rules", cfg.Rules.Source,
		"ttl", cfg.Rules.TTL,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Server.ServiceName,
		ServiceVersion: version,
		SetGlobal:      true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, app.WithLogLevel(level), app.WithTelemetry(tel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	code := 0
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}
