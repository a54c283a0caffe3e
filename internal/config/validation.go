// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/playerd/internal/validate"
)

// Validate checks value ranges. It touches no files; see ValidateRuntime.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if cfg.Log.Level != "" {
		v.OneOf("log.level", cfg.Log.Level, validate.LogLevels)
	}

	e := cfg.Engine
	v.NotEmpty("engine.bin", e.Bin)
	v.NotEmpty("engine.runtimeDir", e.RuntimeDir)
	v.NotEmpty("engine.journalPath", e.JournalPath)
	v.Range("engine.maxInstances", e.MaxInstances, 1, 64)
	v.MinDuration("engine.keyPollInterval", e.KeyPollInterval, time.Millisecond)
	v.Positive("engine.keyRetries", e.KeyRetries)
	v.Positive("engine.defaultKeyRetries", e.DefaultKeyRetries)
	v.MinDuration("engine.restorePollInterval", e.RestorePollInterval, time.Millisecond)
	v.MinDuration("engine.stopSettle", e.StopSettle, 0)
	v.MinDuration("engine.recoverSettle", e.RecoverSettle, 0)
	v.MinDuration("engine.stopGrace", e.StopGrace, 0)
	v.FloatRange("engine.spawnRate", e.SpawnRate, 0, 1000)
	if e.SpawnRate > 0 {
		v.Positive("engine.spawnBurst", e.SpawnBurst)
	}
	v.MinDuration("engine.sweepInterval", e.SweepInterval, 100*time.Millisecond)

	v.MinDuration("scheduler.awaitTimeout", cfg.Scheduler.AwaitTimeout, 0)
	v.Range("scheduler.eventBuffer", cfg.Scheduler.EventBuffer, 1, 4096)

	v.MinDuration("ipc.dialTimeout", cfg.IPC.DialTimeout, 10*time.Millisecond)
	v.NonNegative("ipc.dialRetries", cfg.IPC.DialRetries)
	v.MinDuration("ipc.retryBackoff", cfg.IPC.RetryBackoff, 0)
	v.Positive("ipc.breakerThreshold", cfg.IPC.BreakerThreshold)
	v.MinDuration("ipc.breakerReset", cfg.IPC.BreakerReset, 0)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimitRPS", cfg.API.RateLimitRPS)
	v.MinDuration("api.requestTimeout", cfg.API.RequestTimeout, 100*time.Millisecond)

	if cfg.Metrics.Enabled {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.Redis.Addr != "" {
		v.NotEmpty("redis.channel", cfg.Redis.Channel)
		v.Range("redis.db", cfg.Redis.DB, 0, 15)
		v.MinDuration("redis.stateTTL", cfg.Redis.StateTTL, time.Second)
	}

	return v.Err()
}

// ValidateRuntime checks what serve needs from the host: the runtime
// directory (created if missing) and the worker binary.
func ValidateRuntime(cfg AppConfig) error {
	v := validate.New()
	v.Directory("engine.runtimeDir", cfg.Engine.RuntimeDir, false)
	v.Executable("engine.bin", cfg.Engine.Bin)
	return v.Err()
}
