// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"time"

	"github.com/ManuGH/playerd/internal/procgroup"
)

// Config holds the supervisor's pool and retry tunables.
type Config struct {
	MaxInstances        int
	KeyPollInterval     time.Duration
	KeyRetries          int
	DefaultKeyRetries   int
	RestorePollInterval time.Duration
	StopSettle          time.Duration
	RecoverSettle       time.Duration
	StopGrace           time.Duration
	// SpawnRate is spawns per second; zero or less disables throttling.
	SpawnRate  float64
	SpawnBurst int
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
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
	}
}

// KeySource reports the session key a worker announced, or "" if none yet.
type KeySource interface {
	SessionKey(pid int) (string, error)
}

// Prober checks that a process still exists.
type Prober interface {
	Alive(pid int) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(pid int) bool

func (f ProberFunc) Alive(pid int) bool { return f(pid) }

// StopIssuer posts a forced internal Stop for a dead worker's session.
type StopIssuer func(sessionKey string, pid int)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithProber overrides the liveness probe (default: signal 0).
func WithProber(p Prober) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.prober = p
		}
	}
}

// WithJournal records spawned workers for orphan reaping.
func WithJournal(j Journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithStopIssuer installs the hook that turns detected crashes into Stop commands.
func WithStopIssuer(fn StopIssuer) Option {
	return func(s *Supervisor) { s.issueStop = fn }
}

// WithDestroyedHook is called with the pid of every worker found dead.
func WithDestroyedHook(fn func(pid int)) Option {
	return func(s *Supervisor) { s.onDestroyed = fn }
}

// WithOrphanKiller overrides how journal orphans are killed.
func WithOrphanKiller(fn func(pid int, grace time.Duration) error) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.killOrphan = fn
		}
	}
}

// WithSleep overrides the settle delay function, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func defaultOrphanKiller(pid int, grace time.Duration) error {
	return procgroup.KillGroup(pid, grace, grace)
}
