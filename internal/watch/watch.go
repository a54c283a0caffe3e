// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watch reports named peers appearing in and vanishing from a
// directory, such as worker sockets in the runtime dir.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/log"
)

// Matcher selects the entry names a registration is interested in.
type Matcher func(name string) bool

// Exactly matches one entry name.
func Exactly(name string) Matcher {
	return func(n string) bool { return n == name }
}

// Suffix matches every entry ending in s.
func Suffix(s string) Matcher {
	return func(n string) bool { return strings.HasSuffix(n, s) }
}

// Handler receives the base name of a matching entry. Either func may be nil.
// Callbacks run on the watcher goroutine and must not block.
type Handler struct {
	Appeared func(name string)
	Vanished func(name string)
}

type registration struct {
	id    uint64
	match Matcher
	h     Handler
}

// Watcher watches a single directory.
type Watcher struct {
	dir    string
	fsw    *fsnotify.Watcher
	logger zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	regs   map[uint64]registration
}

// New starts watching dir, which must exist.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}
	return &Watcher{
		dir:    dir,
		fsw:    fsw,
		logger: log.WithComponent("watch").With().Str(log.FieldPath, dir).Logger(),
		regs:   make(map[uint64]registration),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Watch registers h for entries selected by match. Entries already present
// are reported through Appeared before Watch returns. The returned func
// removes the registration.
func (w *Watcher) Watch(match Matcher, h Handler) func() {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.regs[id] = registration{id: id, match: match, h: h}
	w.mu.Unlock()

	if h.Appeared != nil {
		if entries, err := os.ReadDir(w.dir); err == nil {
			for _, e := range entries {
				if match(e.Name()) {
					h.Appeared(e.Name())
				}
			}
		}
	}

	return func() {
		w.mu.Lock()
		delete(w.regs, id)
		w.mu.Unlock()
	}
}

// WaitFor blocks until name exists in the directory. Run must be active.
func (w *Watcher) WaitFor(ctx context.Context, name string) error {
	appeared := make(chan struct{})
	var once sync.Once
	cancel := w.Watch(Exactly(name), Handler{Appeared: func(string) {
		once.Do(func() { close(appeared) })
	}})
	defer cancel()

	select {
	case <-appeared:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", name, ctx.Err())
	}
}

// Run dispatches filesystem events until ctx is done or the watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.dispatch(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn().Err(err).Msg("watch events overflowed, peers may have been missed")
				continue
			}
			w.logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	var appeared bool
	switch {
	case ev.Has(fsnotify.Create):
		appeared = true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		appeared = false
	default:
		return
	}

	w.mu.Lock()
	var fns []func(string)
	for _, r := range w.regs {
		if !r.match(name) {
			continue
		}
		if appeared && r.h.Appeared != nil {
			fns = append(fns, r.h.Appeared)
		} else if !appeared && r.h.Vanished != nil {
			fns = append(fns, r.h.Vanished)
		}
	}
	w.mu.Unlock()

	w.logger.Debug().Str("name", name).Bool("appeared", appeared).Int("handlers", len(fns)).Msg("peer changed")
	for _, fn := range fns {
		fn(name)
	}
}

// Close stops the watcher; Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
