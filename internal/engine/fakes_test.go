// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeProcess struct {
	pid     int
	mu      sync.Mutex
	stopped int
	exited  chan struct{}
	world   *fakeWorld
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Exited() <-chan struct{} { return p.exited }

func (p *fakeProcess) Stop(context.Context, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
	if p.stopped == 1 {
		close(p.exited)
		p.world.kill(p.pid)
	}
	return nil
}

func (p *fakeProcess) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeWorld plays the OS: it spawns pids, announces keys and answers probes.
type fakeWorld struct {
	mu       sync.Mutex
	nextPID  int
	alive    map[int]bool
	keys     map[int]string
	procs    map[int]*fakeProcess
	spawned  int
	announce bool
	spawnErr error
	// keyFor overrides the announced key for a pid.
	keyFor func(pid int) string
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		nextPID:  1000,
		alive:    map[int]bool{},
		keys:     map[int]string{},
		procs:    map[int]*fakeProcess{},
		announce: true,
	}
}

func (w *fakeWorld) Spawn(_ context.Context, _ MediaType) (Process, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.spawnErr != nil {
		return nil, w.spawnErr
	}
	w.nextPID++
	w.spawned++
	pid := w.nextPID
	w.alive[pid] = true
	if w.announce {
		key := fmt.Sprintf("key-%d", pid)
		if w.keyFor != nil {
			key = w.keyFor(pid)
		}
		w.keys[pid] = key
	}
	p := &fakeProcess{pid: pid, exited: make(chan struct{}), world: w}
	w.procs[pid] = p
	return p, nil
}

func (w *fakeWorld) SessionKey(pid int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[pid], nil
}

func (w *fakeWorld) Alive(pid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive[pid]
}

func (w *fakeWorld) kill(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alive[pid] = false
}

func (w *fakeWorld) proc(pid int) *fakeProcess {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.procs[pid]
}

func (w *fakeWorld) Spawned() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawned
}

type stopRecord struct {
	key string
	pid int
}

type stopLog struct {
	mu    sync.Mutex
	stops []stopRecord
}

func (l *stopLog) issue(key string, pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops = append(l.stops, stopRecord{key: key, pid: pid})
}

func (l *stopLog) all() []stopRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stopRecord(nil), l.stops...)
}

type memJournal struct {
	mu      sync.Mutex
	entries map[int]JournalEntry
	failAll bool
}

func newMemJournal() *memJournal {
	return &memJournal{entries: map[int]JournalEntry{}}
}

func (j *memJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failAll {
		return errors.New("journal down")
	}
	j.entries[e.PID] = e
	return nil
}

func (j *memJournal) Remove(_ context.Context, pid int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, pid)
	return nil
}

func (j *memJournal) List(context.Context) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e)
	}
	return out, nil
}

func (j *memJournal) has(pid int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.entries[pid]
	return ok
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.KeyPollInterval = time.Millisecond
	cfg.RestorePollInterval = time.Millisecond
	cfg.KeyRetries = 3
	cfg.DefaultKeyRetries = 3
	cfg.StopGrace = 10 * time.Millisecond
	return cfg
}
