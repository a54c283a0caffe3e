// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sema provides a counting semaphore used for goroutine start and
// stop handshakes.
package sema

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore without an upper bound.
// Notify never blocks; Wait blocks until a count is available.
type Semaphore struct {
	mu    sync.Mutex
	count int
	ready chan struct{} // closed and replaced on every Notify
}

// New returns a semaphore holding initial counts.
func New(initial int) *Semaphore {
	if initial < 0 {
		initial = 0
	}
	return &Semaphore{count: initial}
}

// Notify releases one count and wakes waiters.
func (s *Semaphore) Notify() {
	s.mu.Lock()
	s.count++
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
	s.mu.Unlock()
}

// TryWait takes a count if one is available without blocking.
func (s *Semaphore) TryWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	return false
}

// Wait blocks until a count is taken or ctx is done.
func (s *Semaphore) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			return nil
		}
		if s.ready == nil {
			s.ready = make(chan struct{})
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Value returns the current count.
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
