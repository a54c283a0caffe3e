// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ManuGH/playerd/internal/config"
	"github.com/ManuGH/playerd/internal/daemon"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/version"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	// Safe defaults until the config is loaded.
	log.Configure(log.Config{Level: "info", Service: "playerd", Version: version.Version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateRuntime(cfg); err != nil {
		return fmt.Errorf("validate runtime: %w", err)
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: version.Version})
	logger = log.WithComponent("daemon")

	for _, key := range loader.UnknownEnvKeys(os.Environ()) {
		logger.Warn().Str("key", key).Msg("unknown PLAYERD_ environment variable ignored")
	}

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.API.ListenAddr).
		Str("runtime_dir", cfg.Engine.RuntimeDir).
		Str("engine_bin", cfg.Engine.Bin).
		Int("max_instances", cfg.Engine.MaxInstances).
		Msg("starting playerd")

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	deps := daemon.Deps{
		Logger:     logger,
		APIHandler: rt.API.Handler(),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.Handler()
		deps.MetricsAddr = cfg.Metrics.ListenAddr
	}
	serverCfg := daemon.DefaultServerConfig(cfg.API.ListenAddr)
	if cfg.API.RequestTimeout > 0 {
		serverCfg.WriteTimeout = cfg.API.RequestTimeout + 5*time.Second
	}
	mgr, err := daemon.NewManager(serverCfg, deps)
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}

	holder := config.NewHolder(cfg, loader)
	app := daemon.NewApp(logger, mgr, holder, rt)
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon stopped with error")
		return err
	}
	logger.Info().Msg("playerd stopped")
	return nil
}
