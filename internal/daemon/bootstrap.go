// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the player runtime together and owns its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/api"
	"github.com/ManuGH/playerd/internal/api/middleware"
	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/config"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/health"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/notify"
	"github.com/ManuGH/playerd/internal/player"
	"github.com/ManuGH/playerd/internal/scheduler"
	"github.com/ManuGH/playerd/internal/telemetry"
	"github.com/ManuGH/playerd/internal/watch"
)

const stderrTailLines = 50

// Runtime is the assembled player: supervisor, scheduler, provider and the
// HTTP surface in front of them.
type Runtime struct {
	Config     config.AppConfig
	Journal    *engine.SQLiteJournal
	Supervisor *engine.Supervisor
	Queue      *command.Queue
	Provider   *player.Provider
	Stub       *player.Stub
	Scheduler  *scheduler.Scheduler
	Pool       *ipc.Pool
	Watcher    *watch.Watcher
	Bus        *notify.MemoryBus
	Health     *health.Manager
	API        *api.Server

	redis     *notify.RedisPublisher
	telemetry *telemetry.Provider
	unwatch   func()
	logger    zerolog.Logger
}

// Bootstrap builds the runtime from cfg. Workers left over from a previous
// run are reaped before it returns. On error everything already opened is
// closed again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := os.MkdirAll(cfg.Engine.RuntimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Engine.JournalPath), 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	rt.Journal, err = engine.OpenJournal(ctx, cfg.Engine.JournalPath)
	if err != nil {
		return nil, err
	}

	rt.Bus = notify.NewMemoryBus()
	sinks := []notify.Sink{{Name: "memory", Notifier: rt.Bus}}
	if cfg.Redis.Addr != "" {
		rt.redis, err = notify.NewRedisPublisher(notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			StateTTL: cfg.Redis.StateTTL,
		}, log.WithComponent("redis"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.Sink{Name: "redis", Notifier: rt.redis})
	}

	rt.Supervisor = engine.NewSupervisor(
		engineConfig(cfg.Engine),
		&engine.ExecSpawner{
			Bin:         cfg.Engine.Bin,
			Args:        cfg.Engine.Args,
			RuntimeDir:  cfg.Engine.RuntimeDir,
			StderrLines: stderrTailLines,
		},
		engine.FileKeySource{Dir: cfg.Engine.RuntimeDir},
		engine.WithJournal(rt.Journal),
	)

	rt.Pool = ipc.NewPool(ipc.PoolConfig{
		RuntimeDir:       cfg.Engine.RuntimeDir,
		DialTimeout:      cfg.IPC.DialTimeout,
		DialRetries:      cfg.IPC.DialRetries,
		RetryBackoff:     cfg.IPC.RetryBackoff,
		BreakerThreshold: cfg.IPC.BreakerThreshold,
		BreakerReset:     cfg.IPC.BreakerReset,
	}, rt.deliver)

	rt.Queue = command.NewQueue(nil)
	rt.Provider = player.NewProvider(rt.Supervisor, player.PoolConnector(rt.Pool),
		player.WithNotifier(notify.NewFanout(sinks...)))
	rt.Stub = player.NewStub(rt.Queue, rt.Supervisor)
	rt.Supervisor.SetStopIssuer(rt.Stub.IssueStop)
	rt.Supervisor.SetDestroyedHook(rt.Provider.WorkerDestroyed)

	rt.Scheduler = scheduler.New(rt.Queue, rt.Provider,
		scheduler.WithAwaitTimeout(cfg.Scheduler.AwaitTimeout),
		scheduler.WithEventBuffer(cfg.Scheduler.EventBuffer),
		scheduler.WithTracer(telemetry.Tracer("playerd/scheduler")),
	)
	rt.Provider.SetInvoker(rt.Scheduler)

	rt.Watcher, err = watch.New(cfg.Engine.RuntimeDir)
	if err != nil {
		return nil, err
	}
	rt.unwatch = rt.Watcher.Watch(watch.Suffix(".sock"), watch.Handler{
		Vanished: func(name string) {
			if key, ok := engine.SessionKeyFromSocket(name); ok {
				rt.Provider.PeerVanished(key)
			}
		},
	})

	if n, err := rt.Supervisor.ReapOrphans(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("orphan reaping failed")
	} else if n > 0 {
		rt.logger.Info().Int("reaped", n).Msg("reaped orphaned workers")
	}

	rt.Health = rt.healthManager()

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Log.Service
	}
	rt.API = api.New(api.Deps{
		Sessions:     rt.Stub,
		Registry:     rt.Supervisor,
		State:        rt.Provider,
		Health:       rt.Health,
		MaxInstances: cfg.Engine.MaxInstances,
	}, middleware.StackConfig{
		EnableMetrics:  cfg.Metrics.Enabled,
		TracingService: tracing,
		EnableLogging:  true,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		Timeout:        cfg.API.RequestTimeout,
	})
	return rt, nil
}

func engineConfig(c config.EngineConfig) engine.Config {
	return engine.Config{
		MaxInstances:        c.MaxInstances,
		KeyPollInterval:     c.KeyPollInterval,
		KeyRetries:          c.KeyRetries,
		DefaultKeyRetries:   c.DefaultKeyRetries,
		RestorePollInterval: c.RestorePollInterval,
		StopSettle:          c.StopSettle,
		RecoverSettle:       c.RecoverSettle,
		StopGrace:           c.StopGrace,
		SpawnRate:           c.SpawnRate,
		SpawnBurst:          c.SpawnBurst,
	}
}

// deliver routes one worker notification: the provider mirrors it into
// session state, then the scheduler gets a chance to match an Await.
func (rt *Runtime) deliver(n scheduler.Notification) {
	rt.Provider.Observe(n)
	if rt.Scheduler == nil {
		return
	}
	if err := rt.Scheduler.Notify(n); err != nil && !errors.Is(err, scheduler.ErrClosed) {
		rt.logger.Warn().Err(err).Str(log.FieldSessionKey, n.SessionKey).Msg("notify scheduler failed")
	}
}

// Sweep runs one dead-worker check on the scheduler goroutine.
func (rt *Runtime) Sweep() error {
	return rt.Scheduler.Invoke(func() {
		if n := rt.Supervisor.CheckAndRecoverDeadWorkers(); n > 0 {
			rt.logger.Info().Int("recovered", n).Msg("recovered dead workers")
		}
	})
}

// RunSweeper sweeps every interval() until ctx is done. interval is read
// again after each tick so reloads take effect.
func (rt *Runtime) RunSweeper(ctx context.Context, interval func() time.Duration) error {
	for {
		d := interval()
		if d <= 0 {
			d = config.Defaults().Engine.SweepInterval
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if err := rt.Sweep(); err != nil {
			if errors.Is(err, scheduler.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (rt *Runtime) healthManager() *health.Manager {
	hm := health.NewManager(rt.Config.Version)
	hm.RegisterChecker(health.NewFuncChecker("journal", rt.Journal.Ping))
	hm.RegisterChecker(health.NewWritableDirChecker("runtime_dir", rt.Config.Engine.RuntimeDir))
	hm.RegisterChecker(health.NewCapacityChecker(rt.Supervisor.Live, rt.Config.Engine.MaxInstances))
	if rt.redis != nil {
		// Playback works without Redis; only observers lose updates.
		hm.RegisterChecker(health.Informational(health.NewFuncChecker("redis", rt.redis.HealthCheck)))
	}
	return hm
}

// Close tears the runtime down: the scheduler first so no command touches a
// worker mid-teardown, then connections, workers and storage.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Scheduler != nil {
		if err := rt.Scheduler.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.unwatch != nil {
		rt.unwatch()
	}
	if rt.Watcher != nil {
		if err := rt.Watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Pool != nil {
		if err := rt.Pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Supervisor != nil {
		if err := rt.Supervisor.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Journal != nil {
		if err := rt.Journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.telemetry != nil {
		if err := rt.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
