// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine supervises the pool of player engine worker processes and
// the mapping between their pids and session keys.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
	"github.com/ManuGH/playerd/internal/procgroup"
)

// Slot is the worker bound to a media type.
type Slot struct {
	PID        int
	SessionKey string
	MediaType  MediaType
	Reused     bool
}

// WorkerInfo is a point-in-time view of one tracked worker.
type WorkerInfo struct {
	PID        int       `json:"pid"`
	SessionKey string    `json:"sessionKey,omitempty"`
	MediaType  MediaType `json:"mediaType"`
	Slotted    bool      `json:"slotted"`
	Counted    bool      `json:"counted"`
	Failed     bool      `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
}

type worker struct {
	pid       int
	mediaType MediaType
	proc      Process
	startedAt time.Time

	counted bool // holds one unit of pool capacity
	failed  bool // never announced a usable key
	reaping bool // claimed by a recovery sweep
}

// Supervisor owns the worker pool. All structural state is guarded by mu;
// callbacks and sleeps run outside it.
type Supervisor struct {
	cfg     Config
	spawner Spawner
	keys    KeySource
	prober  Prober
	journal Journal
	limiter *rate.Limiter
	logger  zerolog.Logger

	issueStop   StopIssuer
	onDestroyed func(pid int)
	killOrphan  func(pid int, grace time.Duration) error
	sleep       func(time.Duration)

	mu         sync.Mutex
	workers    map[int]*worker
	sessions   map[int]string
	slots      map[MediaType]int
	live       int
	lastFail   int
	lastLookup int

	stopping sync.WaitGroup
}

// NewSupervisor creates a supervisor with every known media type slot
// registered and empty.
func NewSupervisor(cfg Config, spawner Spawner, keys KeySource, opts ...Option) *Supervisor {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = DefaultConfig().MaxInstances
	}
	limit := rate.Inf
	if cfg.SpawnRate > 0 {
		limit = rate.Limit(cfg.SpawnRate)
	}
	burst := cfg.SpawnBurst
	if burst <= 0 {
		burst = cfg.MaxInstances
	}

	s := &Supervisor{
		cfg:        cfg,
		spawner:    spawner,
		keys:       keys,
		prober:     ProberFunc(procgroup.Alive),
		limiter:    rate.NewLimiter(limit, burst),
		logger:     log.WithComponent("engine"),
		killOrphan: defaultOrphanKiller,
		sleep:      time.Sleep,
		workers:    make(map[int]*worker),
		sessions:   make(map[int]string),
		slots:      make(map[MediaType]int, len(KnownMediaTypes)+1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots[MediaAudio] = 0
	for _, mt := range KnownMediaTypes {
		s.slots[mt] = 0
	}
	metrics.WorkersLive.Set(0)
	return s
}

// SetStopIssuer installs the crash-to-Stop hook after construction, for
// wiring where the command queue is built later.
func (s *Supervisor) SetStopIssuer(fn StopIssuer) {
	s.mu.Lock()
	s.issueStop = fn
	s.mu.Unlock()
}

// SetDestroyedHook installs the dead-worker hook after construction.
func (s *Supervisor) SetDestroyedHook(fn func(pid int)) {
	s.mu.Lock()
	s.onDestroyed = fn
	s.mu.Unlock()
}

// CreateWorker spawns a worker and waits for its session key. The worker
// is not bound to a slot. On key timeout the pid is returned with the error
// and the worker is left for the next recovery sweep.
func (s *Supervisor) CreateWorker(ctx context.Context, mt MediaType) (int, string, error) {
	return s.createWorker(ctx, mt, s.retriesFor(mt))
}

func (s *Supervisor) retriesFor(mt MediaType) int {
	if mt.IsDefault() {
		return s.cfg.DefaultKeyRetries
	}
	return s.cfg.KeyRetries
}

func (s *Supervisor) createWorker(ctx context.Context, mt MediaType, retries int) (int, string, error) {
	s.mu.Lock()
	if s.live >= s.cfg.MaxInstances {
		live := s.live
		s.mu.Unlock()
		metrics.WorkerSpawnTotal.WithLabelValues("capacity").Inc()
		s.logger.Warn().
			Str(log.FieldMediaType, string(mt)).
			Int("live", live).
			Int("max", s.cfg.MaxInstances).
			Msg("worker pool at capacity")
		return 0, "", ErrCapacity
	}
	if !s.limiter.Allow() {
		s.mu.Unlock()
		metrics.WorkerSpawnTotal.WithLabelValues("throttled").Inc()
		return 0, "", ErrSpawnThrottled
	}
	s.live++ // reserve before spawning so concurrent creators respect the ceiling
	s.publishLiveLocked()
	s.mu.Unlock()

	proc, err := s.spawner.Spawn(ctx, mt)
	if err != nil {
		s.mu.Lock()
		s.live--
		s.publishLiveLocked()
		s.mu.Unlock()
		metrics.WorkerSpawnTotal.WithLabelValues("spawn_error").Inc()
		return 0, "", fmt.Errorf("spawn %s worker: %w", mt, err)
	}

	pid := proc.PID()
	w := &worker{pid: pid, mediaType: mt, proc: proc, startedAt: time.Now(), counted: true}
	s.mu.Lock()
	s.workers[pid] = w
	s.mu.Unlock()
	s.record(ctx, JournalEntry{PID: pid, MediaType: mt, StartedAt: w.startedAt})

	key, err := s.pollKey(ctx, pid, retries, s.cfg.KeyPollInterval)
	if err != nil {
		s.mu.Lock()
		w.failed = true
		s.mu.Unlock()
		metrics.WorkerSpawnTotal.WithLabelValues("key_timeout").Inc()
		s.logger.Error().Err(err).
			Int(log.FieldPID, pid).
			Str(log.FieldMediaType, string(mt)).
			Msg("worker did not announce a session key")
		return pid, "", err
	}

	s.mu.Lock()
	s.sessions[pid] = key
	s.mu.Unlock()
	s.record(ctx, JournalEntry{PID: pid, SessionKey: key, MediaType: mt, StartedAt: w.startedAt})

	metrics.WorkerSpawnTotal.WithLabelValues("ok").Inc()
	s.logger.Info().
		Int(log.FieldPID, pid).
		Str(log.FieldSessionKey, key).
		Str(log.FieldMediaType, string(mt)).
		Msg("worker created")
	return pid, key, nil
}

// pollKey waits for pid to announce a key nobody else holds.
func (s *Supervisor) pollKey(ctx context.Context, pid, retries int, interval time.Duration) (string, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(interval):
			}
		}

		key, err := s.keys.SessionKey(pid)
		if err != nil {
			lastErr = err
			continue
		}
		if key == "" {
			if !s.prober.Alive(pid) {
				return "", fmt.Errorf("%w: worker %d exited", ErrSessionKeyTimeout, pid)
			}
			continue
		}
		if owner := s.PIDForSession(key); owner != 0 && owner != pid {
			s.logger.Warn().
				Int(log.FieldPID, pid).
				Int("owner_pid", owner).
				Str(log.FieldSessionKey, key).
				Msg("duplicate session key announced, retrying")
			lastErr = fmt.Errorf("duplicate session key held by pid %d", owner)
			continue
		}
		return key, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %v", ErrSessionKeyTimeout, retries, lastErr)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrSessionKeyTimeout, retries)
}

// AcquireSlot returns the worker for mt, creating it on first use.
// Dead workers are swept first so a crashed slot is recreated.
func (s *Supervisor) AcquireSlot(ctx context.Context, mt MediaType) (Slot, error) {
	if !mt.Valid() {
		return Slot{}, fmt.Errorf("acquire slot: empty media type")
	}
	s.CheckAndRecoverDeadWorkers()

	s.mu.Lock()
	if _, ok := s.slots[mt]; !ok {
		s.logger.Info().Str(log.FieldMediaType, string(mt)).Msg("new media type requested, registering slot")
		s.slots[mt] = 0
	}
	pid := s.slots[mt]
	key := s.sessions[pid]
	s.mu.Unlock()

	if pid > 0 && key != "" {
		return Slot{PID: pid, SessionKey: key, MediaType: mt, Reused: true}, nil
	}

	if pid > 0 {
		// The slot kept its worker but lost the mapping; ask again.
		s.logger.Info().Int(log.FieldPID, pid).Str(log.FieldMediaType, string(mt)).Msg("restoring session key for slot worker")
		key, err := s.pollKey(ctx, pid, s.retriesFor(mt), s.cfg.RestorePollInterval)
		if err != nil {
			s.MarkFailed(pid)
			return Slot{}, err
		}
		s.mu.Lock()
		s.sessions[pid] = key
		s.mu.Unlock()
		return Slot{PID: pid, SessionKey: key, MediaType: mt, Reused: true}, nil
	}

	pid, key, err := s.createWorker(ctx, mt, s.retriesFor(mt))
	if err != nil {
		return Slot{}, err
	}
	s.mu.Lock()
	s.slots[mt] = pid
	s.mu.Unlock()
	return Slot{PID: pid, SessionKey: key, MediaType: mt}, nil
}

// ResolveSession returns the session key of pid, or "" if unknown.
func (s *Supervisor) ResolveSession(pid int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[pid]
}

// PIDForSession returns the pid mapped to key, or 0.
func (s *Supervisor) PIDForSession(key string) int {
	if key == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, k := range s.sessions {
		if k == key {
			return pid
		}
	}
	return 0
}

// RemoveSession evicts the mapping for pid and returns the freed key.
func (s *Supervisor) RemoveSession(pid int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.sessions[pid]
	delete(s.sessions, pid)
	return key
}

// ProbeLiveness reports whether the process behind pid still exists.
func (s *Supervisor) ProbeLiveness(pid int) bool {
	return s.prober.Alive(pid)
}

// MarkFailed records pid as the last known failure; the next sweep treats
// it as dead even if the process still exists.
func (s *Supervisor) MarkFailed(pid int) {
	if pid <= 0 {
		return
	}
	s.mu.Lock()
	s.lastFail = pid
	s.mu.Unlock()
	s.logger.Info().Int(log.FieldPID, pid).Msg("worker marked as pending failure")
}

// MediaIDByType returns the pid bound to mt's slot, or 0.
//
// Single-source slots are force-reset instead. For non-streaming types,
// looking up the same pid twice in a row marks it as pending failure: a
// client asking again means the previous open never completed.
func (s *Supervisor) MediaIDByType(mt MediaType) int {
	pid := 0
	if mt.ForceResetOnLookup() {
		s.mu.Lock()
		stale := s.slots[mt]
		if stale > 0 {
			s.lastFail = stale
		}
		s.mu.Unlock()
		if stale > 0 {
			s.logger.Info().Int(log.FieldPID, stale).Str(log.FieldMediaType, string(mt)).Msg("slot needs force reset")
			s.CheckAndRecoverDeadWorkers()
		}
	} else {
		s.mu.Lock()
		pid = s.slots[mt]
		s.mu.Unlock()
	}

	if mt.IsStreaming() {
		return pid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLookup > 0 && s.lastLookup == pid {
		s.lastFail = pid
		s.lastLookup = 0
	} else {
		s.lastLookup = pid
	}
	return pid
}

// Release is the forced-stop path: the worker gives back its capacity, its
// mapping and slot are cleared, and its process group is terminated.
func (s *Supervisor) Release(pid int) (string, error) {
	s.mu.Lock()
	w, tracked := s.workers[pid]
	key, mapped := s.sessions[pid]
	slotted := s.clearSlotLocked(pid)
	if !tracked && !mapped && !slotted {
		s.mu.Unlock()
		return "", ErrUnknownProcess
	}
	delete(s.sessions, pid)
	if tracked {
		delete(s.workers, pid)
		if w.counted {
			w.counted = false
			s.live--
		}
	}
	if s.lastFail == pid {
		s.lastFail = 0
	}
	s.publishLiveLocked()
	s.mu.Unlock()

	s.logger.Info().Int(log.FieldPID, pid).Str(log.FieldSessionKey, key).Msg("worker released")
	if tracked {
		s.terminate(w, "released")
	}
	return key, nil
}

// CheckAndRecoverDeadWorkers evicts every slot or tracked worker whose
// process is gone, that matches the last recorded failure, or that never
// announced a key. Each evicted worker with a session gets exactly one
// forced Stop through the stop issuer. It returns the number evicted.
func (s *Supervisor) CheckAndRecoverDeadWorkers() int {
	type victim struct {
		w      *worker
		pid    int
		key    string
		reason string
	}

	s.mu.Lock()
	candidates := make(map[int]struct{}, len(s.workers)+len(s.slots))
	for _, pid := range s.slots {
		if pid > 0 {
			candidates[pid] = struct{}{}
		}
	}
	for pid := range s.workers {
		candidates[pid] = struct{}{}
	}

	var victims []victim
	for pid := range candidates {
		w := s.workers[pid]
		if w != nil && w.reaping {
			continue
		}
		var reason string
		switch {
		case pid == s.lastFail:
			reason = "last_failure"
		case w != nil && w.failed:
			reason = "key_timeout"
		case !s.prober.Alive(pid):
			reason = "dead"
		default:
			continue
		}
		if w != nil {
			w.reaping = true
			if w.counted {
				w.counted = false
				s.live--
			}
		}
		s.clearSlotLocked(pid)
		if s.lastFail == pid {
			s.lastFail = 0
		}
		victims = append(victims, victim{w: w, pid: pid, key: s.sessions[pid], reason: reason})
	}
	s.publishLiveLocked()
	issueStop, onDestroyed := s.issueStop, s.onDestroyed
	s.mu.Unlock()

	sort.Slice(victims, func(i, j int) bool { return victims[i].pid < victims[j].pid })
	for _, v := range victims {
		metrics.WorkerRecoveredTotal.WithLabelValues(v.reason).Inc()
		s.logger.Warn().
			Int(log.FieldPID, v.pid).
			Str(log.FieldSessionKey, v.key).
			Str("reason", v.reason).
			Msg("recovering dead worker")

		if onDestroyed != nil {
			onDestroyed(v.pid)
		}
		s.sleep(s.cfg.RecoverSettle)

		if v.key != "" && issueStop != nil {
			issueStop(v.key, v.pid)
			s.sleep(s.cfg.StopSettle)
		}

		s.mu.Lock()
		delete(s.sessions, v.pid)
		if v.w != nil {
			delete(s.workers, v.pid)
		}
		s.mu.Unlock()

		if v.w != nil {
			s.terminate(v.w, v.reason)
		} else {
			s.forget(v.pid)
		}
	}
	return len(victims)
}

// clearSlotLocked resets every slot bound to pid and reports whether any was.
func (s *Supervisor) clearSlotLocked(pid int) bool {
	found := false
	for mt, p := range s.slots {
		if p == pid {
			s.slots[mt] = 0
			found = true
		}
	}
	return found
}

func (s *Supervisor) publishLiveLocked() {
	metrics.WorkersLive.Set(float64(s.live))
}

// terminate stops w's process group in the background.
func (s *Supervisor) terminate(w *worker, reason string) {
	s.stopping.Add(1)
	go func() {
		defer s.stopping.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.StopGrace+time.Second)
		defer cancel()
		if err := w.proc.Stop(ctx, s.cfg.StopGrace); err != nil {
			s.logger.Warn().Err(err).Int(log.FieldPID, w.pid).Str("reason", reason).Msg("worker terminate failed")
		}
		s.forget(w.pid)
	}()
}

// forget drops the journal entry and key announcement of a gone worker.
func (s *Supervisor) forget(pid int) {
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.journal.Remove(ctx, pid); err != nil {
			s.logger.Warn().Err(err).Int(log.FieldPID, pid).Msg("journal remove failed")
		}
		cancel()
	}
	if f, ok := s.keys.(interface{ Forget(pid int) error }); ok {
		if err := f.Forget(pid); err != nil {
			s.logger.Debug().Err(err).Int(log.FieldPID, pid).Msg("remove key announcement failed")
		}
	}
}

func (s *Supervisor) record(ctx context.Context, e JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn().Err(err).Int(log.FieldPID, e.PID).Msg("journal record failed")
	}
}

// ReapOrphans kills workers journaled by a previous daemon instance that are
// still running, and clears the journal of everything not tracked now.
func (s *Supervisor) ReapOrphans(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	entries, err := s.journal.List(ctx)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, e := range entries {
		s.mu.Lock()
		_, ours := s.workers[e.PID]
		s.mu.Unlock()
		if ours {
			continue
		}
		if s.prober.Alive(e.PID) {
			s.logger.Warn().
				Int(log.FieldPID, e.PID).
				Str(log.FieldSessionKey, e.SessionKey).
				Str(log.FieldMediaType, string(e.MediaType)).
				Msg("killing orphaned worker from previous run")
			if err := s.killOrphan(e.PID, s.cfg.StopGrace); err != nil {
				s.logger.Error().Err(err).Int(log.FieldPID, e.PID).Msg("orphan kill failed")
				continue
			}
			killed++
		}
		s.forget(e.PID)
	}
	return killed, nil
}

// Live returns the number of workers counted against the ceiling.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// SlotPID returns the pid bound to mt, or 0.
func (s *Supervisor) SlotPID(mt MediaType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[mt]
}

// MediaTypeOf returns the media type pid was spawned for.
func (s *Supervisor) MediaTypeOf(pid int) (MediaType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[pid]; ok {
		return w.mediaType, true
	}
	return "", false
}

// Snapshot lists tracked workers ordered by pid.
func (s *Supervisor) Snapshot() []WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotted := make(map[int]bool, len(s.slots))
	for _, pid := range s.slots {
		if pid > 0 {
			slotted[pid] = true
		}
	}
	out := make([]WorkerInfo, 0, len(s.workers))
	for pid, w := range s.workers {
		out = append(out, WorkerInfo{
			PID:        pid,
			SessionKey: s.sessions[pid],
			MediaType:  w.mediaType,
			Slotted:    slotted[pid],
			Counted:    w.counted,
			Failed:     w.failed || pid == s.lastFail,
			StartedAt:  w.startedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Close terminates every tracked worker and waits for them to exit.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workers = make(map[int]*worker)
	s.sessions = make(map[int]string)
	for mt := range s.slots {
		s.slots[mt] = 0
	}
	s.live = 0
	s.publishLiveLocked()
	s.mu.Unlock()

	for _, w := range workers {
		s.terminate(w, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.stopping.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine close: %w", ctx.Err())
	}
}
