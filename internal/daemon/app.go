// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/playerd/internal/config"
)

// App owns the long-lived runtime lifecycle (watchers, reload wiring, the
// dead-worker sweep) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	runtime      *Runtime
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. The runtime is closed as the last
// shutdown hook of manager.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder, rt *Runtime) *App {
	if manager != nil && rt != nil {
		manager.RegisterShutdownHook("runtime", rt.Close)
	}
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		runtime:      rt,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.runtime != nil {
		g.Go(func() error { return a.runtime.Watcher.Run(ctx) })
		g.Go(func() error { return a.runtime.RunSweeper(ctx, a.sweepInterval) })
	}

	if a.cfgHolder != nil {
		// Config watcher is best-effort: a failing watcher must not stop playback.
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.Subscribe(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					applyLogLevel(a.logger, cfg.Log.Level)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

func (a *App) sweepInterval() time.Duration {
	if a.cfgHolder != nil {
		return a.cfgHolder.Get().Engine.SweepInterval
	}
	return a.runtime.Config.Engine.SweepInterval
}

func applyLogLevel(logger zerolog.Logger, level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return
	}
	if zerolog.GlobalLevel() == parsed {
		return
	}
	zerolog.SetGlobalLevel(parsed)
	logger.Info().Str("event", "log.level_changed").Str("level", parsed.String()).Msg("log level applied")
}
