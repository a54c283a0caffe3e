// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command playerengine is the reference player worker spawned by playerd.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/playerengine"
	"github.com/ManuGH/playerd/internal/version"
)

func main() {
	// stdout is not read by the supervisor; stderr is kept as the crash tail.
	log.Configure(log.Config{
		Level:   os.Getenv("PLAYERD_ENGINE_LOG_LEVEL"),
		Output:  os.Stderr,
		Service: "playerengine",
		Version: version.Version,
	})
	logger := log.WithComponent("engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := playerengine.ConfigFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("invalid worker environment")
		os.Exit(2)
	}
	e, err := playerengine.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("start worker")
		os.Exit(1)
	}
	logger.Info().
		Int(log.FieldPID, os.Getpid()).
		Str(log.FieldSessionKey, e.Key()).
		Str(log.FieldMediaType, os.Getenv(engine.EnvMediaType)).
		Msg("worker ready")

	if err := e.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
}
