// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/player"
)

// Sessions is the request-layer view of the player. It never blocks on a
// worker beyond the reply of the posted command.
type Sessions interface {
	OpenSync(ctx context.Context, args command.OpenArgs) (player.Response, error)
	ControlSync(ctx context.Context, kind command.Kind, mediaID int, args any) (player.Response, error)
	MediaIDByType(mt engine.MediaType) int
}

// Registry exposes worker bookkeeping for diagnostics.
type Registry interface {
	Snapshot() []engine.WorkerInfo
	Live() int
}

// StateReader returns the last known per-session playback state.
type StateReader interface {
	Sessions() []player.SessionState
}

// HealthService serves liveness and readiness probes.
type HealthService interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// Deps holds all dependencies for the API server
type Deps struct {
	Sessions Sessions
	Registry Registry
	State    StateReader
	// Health serves /healthz and /readyz; nil reports always healthy.
	Health HealthService
	// MaxInstances is reported next to the live worker count.
	MaxInstances int
}
