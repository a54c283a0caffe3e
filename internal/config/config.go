// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads playerd's configuration with precedence
// ENV > File > Defaults.
package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	IPC       IPCConfig       `yaml:"ipc"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// EngineConfig covers worker spawning and supervision.
type EngineConfig struct {
	Bin         string   `yaml:"bin"`
	Args        []string `yaml:"args"`
	RuntimeDir  string   `yaml:"runtimeDir"`
	JournalPath string   `yaml:"journalPath"`

	MaxInstances        int           `yaml:"maxInstances"`
	KeyPollInterval     time.Duration `yaml:"keyPollInterval"`
	KeyRetries          int           `yaml:"keyRetries"`
	DefaultKeyRetries   int           `yaml:"defaultKeyRetries"`
	RestorePollInterval time.Duration `yaml:"restorePollInterval"`
	StopSettle          time.Duration `yaml:"stopSettle"`
	RecoverSettle       time.Duration `yaml:"recoverSettle"`
	StopGrace           time.Duration `yaml:"stopGrace"`
	SpawnRate           float64       `yaml:"spawnRate"`
	SpawnBurst          int           `yaml:"spawnBurst"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
}

type SchedulerConfig struct {
	// AwaitTimeout bounds every Await; zero waits forever.
	AwaitTimeout time.Duration `yaml:"awaitTimeout"`
	EventBuffer  int           `yaml:"eventBuffer"`
}

// IPCConfig covers dialing worker sockets.
type IPCConfig struct {
	DialTimeout      time.Duration `yaml:"dialTimeout"`
	DialRetries      int           `yaml:"dialRetries"`
	RetryBackoff     time.Duration `yaml:"retryBackoff"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type APIConfig struct {
	ListenAddr     string        `yaml:"listenAddr"`
	RateLimitRPS   int           `yaml:"rateLimitRPS"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// RedisConfig enables the Redis state publisher when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	StateTTL time.Duration `yaml:"stateTTL"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "playerd"},
		Engine: EngineConfig{
			Bin:                 "playerengine",
			RuntimeDir:          "/run/playerd",
			JournalPath:         "/var/lib/playerd/journal.db",
			MaxInstances:        14,
			KeyPollInterval:     100 * time.Millisecond,
			KeyRetries:          20,
			DefaultKeyRetries:   10,
			RestorePollInterval: 20 * time.Millisecond,
			StopSettle:          200 * time.Millisecond,
			RecoverSettle:       10 * time.Millisecond,
			StopGrace:           2 * time.Second,
			SpawnRate:           0,
			SpawnBurst:          14,
			SweepInterval:       5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			AwaitTimeout: 10 * time.Second,
			EventBuffer:  64,
		},
		IPC: IPCConfig{
			DialTimeout:      time.Second,
			DialRetries:      10,
			RetryBackoff:     50 * time.Millisecond,
			BreakerThreshold: 3,
			BreakerReset:     5 * time.Second,
		},
		API: APIConfig{
			ListenAddr:     ":8088",
			RateLimitRPS:   50,
			RequestTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, ListenAddr: ":9091"},
		Telemetry: TelemetryConfig{
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		Redis: RedisConfig{
			Channel:  "playerd:state",
			StateTTL: time.Hour,
		},
	}
}
