// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
	"github.com/ManuGH/playerd/internal/telemetry"
)

// awaiter is bound to one handler invocation.
type awaiter struct {
	s   *Scheduler
	ctx context.Context
}

func (a *awaiter) Await(sessionKey string, success, failure Event) (Notification, bool) {
	n, ok, outcome := a.s.await(a.ctx, sessionKey, success, failure)
	metrics.AwaitTotal.WithLabelValues(outcome).Inc()
	emitAwaitObs(a.ctx, outcome)
	trace.SpanFromContext(a.ctx).AddEvent("await",
		trace.WithAttributes(telemetry.AwaitAttributes(outcome, n.Event.String())...))
	return n, ok
}

func (s *Scheduler) await(ctx context.Context, sessionKey string, success, failure Event) (Notification, bool, string) {
	s.setState(StateAwaiting)
	defer s.setState(StateDispatching)

	var timeout <-chan time.Time
	if s.awaitTimeout > 0 {
		timer := time.NewTimer(s.awaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case n := <-s.events:
			if sessionKey != "" && n.SessionKey != sessionKey {
				s.logger.Debug().
					Str(log.FieldEvent, n.Event.String()).
					Str(log.FieldSessionKey, n.SessionKey).
					Msg("event for other session ignored while awaiting")
				continue
			}
			switch {
			case n.Event&success != 0:
				return n, true, "success"
			case n.Event&failure != 0:
				return n, false, "failure"
			}
		case fn := <-s.tasks:
			s.runTask(fn)
		case <-timeout:
			s.logger.Warn().
				Str(log.FieldSessionKey, sessionKey).
				Str(log.FieldSuccess, success.String()).
				Str(log.FieldFailure, failure.String()).
				Dur("timeout", s.awaitTimeout).
				Msg("await timed out")
			return Notification{Event: EventTimeout, SessionKey: sessionKey}, false, "timeout"
		case <-ctx.Done():
			return Notification{Event: EventNone, SessionKey: sessionKey}, false, "cancelled"
		}
	}
}
