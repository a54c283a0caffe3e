// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "PLAYERD_"

// Loader applies defaults, then the YAML file, then the environment.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, or "" for ENV-only configuration.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

// Load returns the validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	l.mergeEnv(&cfg)
	cfg.Version = l.version

	for _, p := range []*string{&cfg.Engine.RuntimeDir, &cfg.Engine.JournalPath} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// UnknownEnvKeys lists PLAYERD_* variables that no Load consumed.
func (l *Loader) UnknownEnvKeys(environ []string) []string {
	var out []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok && !workerEnvKeys[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// workerEnvKeys are read by worker processes, not by the daemon.
var workerEnvKeys = map[string]bool{
	"PLAYERD_RUNTIME_DIR":        true,
	"PLAYERD_MEDIA_TYPE":         true,
	"PLAYERD_ENGINE_TICK":        true,
	"PLAYERD_ENGINE_DURATION_MS": true,
	"PLAYERD_ENGINE_LOG_LEVEL":   true,
	// Read by the CLI to locate the config file.
	"PLAYERD_CONFIG": true,
}

// loadFile decodes path onto cfg. Unknown fields are fatal.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.envString("PLAYERD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("PLAYERD_LOG_SERVICE", cfg.Log.Service)

	e := &cfg.Engine
	e.Bin = l.envString("PLAYERD_ENGINE_BIN", e.Bin)
	if args := l.envString("PLAYERD_ENGINE_ARGS", ""); args != "" {
		e.Args = strings.Fields(args)
	}
	e.RuntimeDir = l.envString("PLAYERD_ENGINE_RUNTIME_DIR", e.RuntimeDir)
	e.JournalPath = l.envString("PLAYERD_ENGINE_JOURNAL_PATH", e.JournalPath)
	e.MaxInstances = l.envInt("PLAYERD_ENGINE_MAX_INSTANCES", e.MaxInstances)
	e.KeyPollInterval = l.envDuration("PLAYERD_ENGINE_KEY_POLL_INTERVAL", e.KeyPollInterval)
	e.KeyRetries = l.envInt("PLAYERD_ENGINE_KEY_RETRIES", e.KeyRetries)
	e.DefaultKeyRetries = l.envInt("PLAYERD_ENGINE_DEFAULT_KEY_RETRIES", e.DefaultKeyRetries)
	e.RestorePollInterval = l.envDuration("PLAYERD_ENGINE_RESTORE_POLL_INTERVAL", e.RestorePollInterval)
	e.StopSettle = l.envDuration("PLAYERD_ENGINE_STOP_SETTLE", e.StopSettle)
	e.RecoverSettle = l.envDuration("PLAYERD_ENGINE_RECOVER_SETTLE", e.RecoverSettle)
	e.StopGrace = l.envDuration("PLAYERD_ENGINE_STOP_GRACE", e.StopGrace)
	e.SpawnRate = l.envFloat("PLAYERD_ENGINE_SPAWN_RATE", e.SpawnRate)
	e.SpawnBurst = l.envInt("PLAYERD_ENGINE_SPAWN_BURST", e.SpawnBurst)
	e.SweepInterval = l.envDuration("PLAYERD_ENGINE_SWEEP_INTERVAL", e.SweepInterval)

	cfg.Scheduler.AwaitTimeout = l.envDuration("PLAYERD_SCHEDULER_AWAIT_TIMEOUT", cfg.Scheduler.AwaitTimeout)
	cfg.Scheduler.EventBuffer = l.envInt("PLAYERD_SCHEDULER_EVENT_BUFFER", cfg.Scheduler.EventBuffer)

	cfg.IPC.DialTimeout = l.envDuration("PLAYERD_IPC_DIAL_TIMEOUT", cfg.IPC.DialTimeout)
	cfg.IPC.DialRetries = l.envInt("PLAYERD_IPC_DIAL_RETRIES", cfg.IPC.DialRetries)
	cfg.IPC.RetryBackoff = l.envDuration("PLAYERD_IPC_RETRY_BACKOFF", cfg.IPC.RetryBackoff)
	cfg.IPC.BreakerThreshold = l.envInt("PLAYERD_IPC_BREAKER_THRESHOLD", cfg.IPC.BreakerThreshold)
	cfg.IPC.BreakerReset = l.envDuration("PLAYERD_IPC_BREAKER_RESET", cfg.IPC.BreakerReset)

	cfg.API.ListenAddr = l.envString("PLAYERD_API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimitRPS = l.envInt("PLAYERD_API_RATE_LIMIT_RPS", cfg.API.RateLimitRPS)
	cfg.API.RequestTimeout = l.envDuration("PLAYERD_API_REQUEST_TIMEOUT", cfg.API.RequestTimeout)

	cfg.Metrics.Enabled = l.envBool("PLAYERD_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("PLAYERD_METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	cfg.Telemetry.Enabled = l.envBool("PLAYERD_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString("PLAYERD_TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("PLAYERD_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("PLAYERD_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("PLAYERD_TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Redis.Addr = l.envString("PLAYERD_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("PLAYERD_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("PLAYERD_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = l.envString("PLAYERD_REDIS_CHANNEL", cfg.Redis.Channel)
	cfg.Redis.StateTTL = l.envDuration("PLAYERD_REDIS_STATE_TTL", cfg.Redis.StateTTL)
}
