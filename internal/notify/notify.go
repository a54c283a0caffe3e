// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notify publishes per-session player state changes.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
)

// Attributes reported in a Change.
const (
	AttrState       = "state"
	AttrPosition    = "position"
	AttrDuration    = "duration"
	AttrSource      = "source"
	AttrVolume      = "volume"
	AttrMute        = "mute"
	AttrRate        = "rate"
	AttrSpeed       = "speed"
	AttrError       = "error"
	AttrEndOfStream = "end_of_stream"
	AttrDestroyed   = "destroyed"
)

// Change is one attribute update of a session.
type Change struct {
	SessionKey string    `json:"sessionKey"`
	PID        int       `json:"pid,omitempty"`
	Attribute  string    `json:"attribute"`
	Value      any       `json:"value,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier delivers state changes to interested parties.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Sink is a named Notifier inside a Fanout.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Fanout forwards every change to all sinks. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: log.WithComponent("notify")}
}

func (f *Fanout) Notify(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notifier.Notify(ctx, c); err != nil {
			metrics.IncNotifyPublished(s.Name, "error")
			f.logger.Warn().Err(err).
				Str("sink", s.Name).
				Str(log.FieldSessionKey, c.SessionKey).
				Str("attribute", c.Attribute).
				Msg("state change publish failed")
			errs = append(errs, err)
			continue
		}
		metrics.IncNotifyPublished(s.Name, "ok")
	}
	return errors.Join(errs...)
}

// Nop discards every change.
type Nop struct{}

func (Nop) Notify(context.Context, Change) error { return nil }
