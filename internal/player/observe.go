// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"time"

	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/notify"
	"github.com/ManuGH/playerd/internal/scheduler"
)

// Observe applies an unsolicited worker notification to the session state
// and publishes the change. Call acknowledgements are left to Await.
func (p *Provider) Observe(n scheduler.Notification) {
	if n.Event == scheduler.EventEngineDestroyed {
		p.engineLost(n.SessionKey, "engine_destroyed")
		return
	}

	var (
		attr  string
		value any
		apply func(*SessionState)
	)
	switch n.Event {
	case scheduler.EventStateChanged:
		var info ipc.StateInfo
		if n.Decode(&info) != nil || info.State == "" {
			return
		}
		attr, value = notify.AttrState, info.State
		apply = func(st *SessionState) { st.State = info.State }
	case scheduler.EventPosition:
		var info ipc.PositionInfo
		if n.Decode(&info) != nil {
			return
		}
		attr, value = notify.AttrPosition, info.PositionMs
		apply = func(st *SessionState) { st.PositionMs = info.PositionMs }
	case scheduler.EventDuration:
		var info ipc.DurationInfo
		if n.Decode(&info) != nil {
			return
		}
		attr, value = notify.AttrDuration, info.DurationMs
		apply = func(st *SessionState) { st.DurationMs = info.DurationMs }
	case scheduler.EventSourceInfo:
		var info ipc.SourceInfo
		if n.Decode(&info) != nil {
			return
		}
		attr, value = notify.AttrSource, info
		apply = func(st *SessionState) {
			if info.URI != "" {
				st.URI = info.URI
			}
			st.DurationMs = info.DurationMs
			st.Seekable = info.Seekable
		}
	case scheduler.EventEndOfStream:
		attr, value = notify.AttrEndOfStream, true
		apply = func(st *SessionState) {
			st.State = ipc.StateStopped
			if st.DurationMs > 0 {
				st.PositionMs = st.DurationMs
			}
		}
	case scheduler.EventError:
		var info ipc.ErrorInfo
		_ = n.Decode(&info)
		attr, value = notify.AttrError, info.Message
		apply = func(st *SessionState) { st.LastError = info.Message }
	default:
		return
	}

	p.set(n.SessionKey, attr, value, apply)
}

// PeerVanished handles a worker socket disappearing from the runtime dir.
func (p *Provider) PeerVanished(sessionKey string) {
	p.engineLost(sessionKey, "socket_vanished")
}

// WorkerDestroyed is the supervisor's hook for a worker found dead. The
// forced Stop that follows cleans up the session state.
func (p *Provider) WorkerDestroyed(pid int) {
	if key := p.workers.ResolveSession(pid); key != "" {
		p.conns.Forget(key)
	}
	p.mu.Lock()
	for _, st := range p.sessions {
		if st.MediaID == pid {
			st.State = ipc.StateStopped
			st.UpdatedAt = time.Now()
		}
	}
	p.mu.Unlock()
}

// engineLost marks the session's worker failed and schedules a sweep.
func (p *Provider) engineLost(sessionKey, reason string) {
	pid := p.workers.PIDForSession(sessionKey)
	if pid == 0 {
		return
	}
	p.logger.Warn().
		Int(log.FieldPID, pid).
		Str(log.FieldSessionKey, sessionKey).
		Str("reason", reason).
		Msg("worker lost, scheduling recovery")
	p.workers.MarkFailed(pid)

	p.invMu.Lock()
	inv := p.invoker
	p.invMu.Unlock()
	if inv == nil {
		return
	}
	if err := inv.Invoke(func() { p.workers.CheckAndRecoverDeadWorkers() }); err != nil {
		p.logger.Debug().Err(err).Msg("recovery sweep not scheduled")
	}
}
