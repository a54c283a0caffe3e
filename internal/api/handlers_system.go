// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/playerd/internal/engine"
)

type workersResponse struct {
	Live         int                 `json:"live"`
	MaxInstances int                 `json:"maxInstances"`
	Workers      []engine.WorkerInfo `json:"workers"`
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Registry == nil {
		writeJSON(w, http.StatusOK, workersResponse{Workers: []engine.WorkerInfo{}, MaxInstances: s.deps.MaxInstances})
		return
	}
	workers := s.deps.Registry.Snapshot()
	if workers == nil {
		workers = []engine.WorkerInfo{}
	}
	writeJSON(w, http.StatusOK, workersResponse{
		Live:         s.deps.Registry.Live(),
		MaxInstances: s.deps.MaxInstances,
		Workers:      workers,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	s.deps.Health.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "status": "healthy"})
		return
	}
	s.deps.Health.ServeReady(w, r)
}
