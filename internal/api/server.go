// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the player control surface over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/playerd/internal/api/middleware"
)

// Server represents the HTTP API server for playerd.
type Server struct {
	deps   Deps
	router chi.Router
}

// New builds the router. stack configures the shared middleware chain.
func New(deps Deps, stack middleware.StackConfig) *Server {
	s := &Server{deps: deps}
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleOpen)
		r.Get("/sessions", s.handleSessions)
		r.Post("/sessions/{mediaId}/{action}", s.handleControl)
		r.Get("/media-types/{type}", s.handleMediaType)
		r.Get("/workers", s.handleWorkers)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }
