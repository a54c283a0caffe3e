// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchProbe struct {
	mu  sync.Mutex
	err error
}

func (p *switchProbe) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *switchProbe) probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// daemonChecks holds the switches of the checkers the daemon wires at startup.
type daemonChecks struct {
	journal switchProbe
	redis   switchProbe
	live    atomic.Int64
}

func newDaemonManager(t *testing.T, maxWorkers int) (*Manager, *daemonChecks) {
	t.Helper()
	d := &daemonChecks{}
	m := NewManager("v0.1.0")
	m.RegisterChecker(NewFuncChecker("journal", d.journal.probe))
	m.RegisterChecker(NewWritableDirChecker("runtime_dir", t.TempDir()))
	m.RegisterChecker(NewCapacityChecker(func() int { return int(d.live.Load()) }, maxWorkers))
	m.RegisterChecker(Informational(NewFuncChecker("redis", d.redis.probe)))
	return m, d
}

func TestManager_NoCheckers(t *testing.T) {
	m := NewManager("v0.1.0")

	h := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, "v0.1.0", h.Version)
	assert.Nil(t, h.Checks)

	r := m.Ready(context.Background(), false)
	assert.True(t, r.Ready)
	assert.Nil(t, r.Checks)
}

func TestManager_ReadinessFollowsWorstCheck(t *testing.T) {
	m, d := newDaemonManager(t, 2)

	r := m.Ready(context.Background(), false)
	assert.True(t, r.Ready)
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Len(t, r.Checks, 4)

	d.redis.set(errors.New("connection refused"))
	d.live.Store(2)
	r = m.Ready(context.Background(), false)
	assert.True(t, r.Ready, "redis and a full pool only degrade")
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, StatusDegraded, r.Checks["redis"].Status)
	assert.Equal(t, "2/2 workers (at ceiling)", r.Checks["worker_capacity"].Message)

	d.journal.set(errors.New("sql: database is closed"))
	r = m.Ready(context.Background(), false)
	assert.False(t, r.Ready)
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "sql: database is closed", r.Checks["journal"].Error)
}

func TestManager_HealthChecksOnlyWhenVerbose(t *testing.T) {
	m, d := newDaemonManager(t, 14)
	d.journal.set(errors.New("closed"))

	h := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Nil(t, h.Checks)

	h = m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Len(t, h.Checks, 4)
}

func TestManager_ServeEndpoints(t *testing.T) {
	m, d := newDaemonManager(t, 14)
	d.journal.set(errors.New("closed"))

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores failing checks")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var h HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&h))
	assert.Equal(t, StatusUnhealthy, h.Status)

	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var r ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.False(t, r.Ready)

	d.journal.set(nil)
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManager_MissingRuntimeDirIsUnready(t *testing.T) {
	m := NewManager("v0.1.0")
	m.RegisterChecker(NewWritableDirChecker("runtime_dir", filepath.Join(t.TempDir(), "gone")))

	r := m.Ready(context.Background(), false)
	assert.False(t, r.Ready)
	assert.Equal(t, StatusUnhealthy, r.Checks["runtime_dir"].Status)
}

func TestManager_RegisterWhileChecking(t *testing.T) {
	m := NewManager("v0.1.0")
	ok := NewFuncChecker("ok", func(context.Context) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RegisterChecker(ok)
		}()
		go func() {
			defer wg.Done()
			_ = m.Ready(context.Background(), false)
			_ = m.Health(context.Background(), true)
		}()
	}
	wg.Wait()

	assert.Len(t, m.snapshot(), 8)
	assert.True(t, m.Ready(context.Background(), false).Ready)
}
