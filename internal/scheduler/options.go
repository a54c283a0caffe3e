// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAwaitTimeout bounds every Await. Zero disables the bound.
func WithAwaitTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.awaitTimeout = d
		}
	}
}

// WithEventBuffer sets the capacity of the notification channel.
func WithEventBuffer(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}

// WithTracer overrides the tracer used for command spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}
