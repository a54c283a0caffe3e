// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/notify"
	"github.com/ManuGH/playerd/internal/scheduler"
)

// world spawns fake workers that announce "key-<pid>" immediately.
type world struct {
	mu    sync.Mutex
	next  int
	alive map[int]bool
	procs map[int]*fakeProc
}

func newWorld() *world {
	return &world{next: 2000, alive: map[int]bool{}, procs: map[int]*fakeProc{}}
}

func (w *world) Spawn(context.Context, engine.MediaType) (engine.Process, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	p := &fakeProc{pid: w.next, exited: make(chan struct{}), w: w}
	w.alive[p.pid] = true
	w.procs[p.pid] = p
	return p, nil
}

func (w *world) SessionKey(pid int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.procs[pid]; !ok {
		return "", nil
	}
	return fmt.Sprintf("key-%d", pid), nil
}

func (w *world) Alive(pid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive[pid]
}

func (w *world) kill(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alive[pid] = false
}

func (w *world) stopped(pid int) bool {
	w.mu.Lock()
	p := w.procs[pid]
	w.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

type fakeProc struct {
	pid    int
	once   sync.Once
	exited chan struct{}
	w      *world
}

func (p *fakeProc) PID() int                { return p.pid }
func (p *fakeProc) Exited() <-chan struct{} { return p.exited }

func (p *fakeProc) Stop(context.Context, time.Duration) error {
	p.once.Do(func() {
		close(p.exited)
		p.w.kill(p.pid)
	})
	return nil
}

type callRecord struct {
	key    string
	method string
	params any
}

// fakeConns plays the worker side of every session: calls are acknowledged
// asynchronously through sink, like a real worker connection.
type fakeConns struct {
	mu          sync.Mutex
	sink        func(scheduler.Notification)
	nextID      uint64
	calls       []callRecord
	forgotten   []string
	connectErr  error
	failMethods map[string]string
	silentURIs  map[string]bool
	// asyncDelays delays the async_done of successive set_position calls;
	// a negative delay withholds it.
	asyncDelays []time.Duration
}

func newFakeConns() *fakeConns {
	return &fakeConns{failMethods: map[string]string{}, silentURIs: map[string]bool{}}
}

func (c *fakeConns) Connect(_ context.Context, key string) (Caller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return &fakeCaller{c: c, key: key}, nil
}

func (c *fakeConns) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten = append(c.forgotten, key)
}

func (c *fakeConns) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.calls))
	for _, r := range c.calls {
		out = append(out, r.method)
	}
	return out
}

func (c *fakeConns) lastCall() callRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return callRecord{}
	}
	return c.calls[len(c.calls)-1]
}

func (c *fakeConns) wasForgotten(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.forgotten {
		if k == key {
			return true
		}
	}
	return false
}

func (c *fakeConns) deliver(n scheduler.Notification) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(n)
	}
}

func payload(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

type fakeCaller struct {
	c   *fakeConns
	key string
}

func (f *fakeCaller) Call(method string, params any) (uint64, error) {
	c := f.c
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.calls = append(c.calls, callRecord{key: f.key, method: method, params: params})
	failMsg, fail := c.failMethods[method]
	silent := false
	if open, ok := params.(command.OpenArgs); ok {
		silent = c.silentURIs[open.URI]
	}
	var asyncDelay time.Duration
	if method == ipc.MethodSetPosition && len(c.asyncDelays) > 0 {
		asyncDelay, c.asyncDelays = c.asyncDelays[0], c.asyncDelays[1:]
	}
	c.mu.Unlock()

	go func() {
		if fail {
			c.deliver(scheduler.Notification{Event: scheduler.EventCallFailed, SessionKey: f.key, CallID: id,
				Payload: payload(ipc.ErrorInfo{Message: failMsg})})
			return
		}
		c.deliver(scheduler.Notification{Event: scheduler.EventCallDone, SessionKey: f.key, CallID: id})
		switch method {
		case ipc.MethodSetURI:
			if silent {
				return
			}
			open := params.(command.OpenArgs)
			c.deliver(scheduler.Notification{Event: scheduler.EventSourceInfo, SessionKey: f.key, CallID: id,
				Payload: payload(ipc.SourceInfo{URI: open.URI, DurationMs: 60000, Seekable: true})})
		case ipc.MethodSetPosition:
			if asyncDelay < 0 {
				return
			}
			time.Sleep(asyncDelay)
			c.deliver(scheduler.Notification{Event: scheduler.EventAsyncDone, SessionKey: f.key, CallID: id})
		case ipc.MethodPlay:
			c.deliver(scheduler.Notification{Event: scheduler.EventStateChanged, SessionKey: f.key,
				Payload: payload(ipc.StateInfo{State: ipc.StatePlaying})})
		}
	}()
	return id, nil
}

type harness struct {
	world    *world
	sup      *engine.Supervisor
	conns    *fakeConns
	bus      *notify.MemoryBus
	queue    *command.Queue
	provider *Provider
	stub     *Stub
	sched    *scheduler.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.KeyPollInterval = time.Millisecond
	cfg.RestorePollInterval = time.Millisecond
	cfg.KeyRetries = 3
	cfg.DefaultKeyRetries = 3
	cfg.StopGrace = 10 * time.Millisecond

	h := &harness{world: newWorld(), conns: newFakeConns(), bus: notify.NewMemoryBus()}
	h.sup = engine.NewSupervisor(cfg, h.world, h.world,
		engine.WithProber(h.world),
		engine.WithSleep(func(time.Duration) {}))
	h.queue = command.NewQueue(nil)
	h.provider = NewProvider(h.sup, h.conns, WithNotifier(h.bus))
	h.stub = NewStub(h.queue, h.sup)
	h.sup.SetStopIssuer(h.stub.IssueStop)
	h.sup.SetDestroyedHook(h.provider.WorkerDestroyed)
	h.sched = scheduler.New(h.queue, h.provider, scheduler.WithAwaitTimeout(300*time.Millisecond))
	h.provider.SetInvoker(h.sched)
	h.conns.mu.Lock()
	h.conns.sink = func(n scheduler.Notification) {
		h.provider.Observe(n)
		_ = h.sched.Notify(n)
	}
	h.conns.mu.Unlock()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.sched.Close(ctx)
		_ = h.sup.Close(ctx)
	})
	return h
}

func (h *harness) ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// open opens uri on mt and returns the reply.
func (h *harness) open(t *testing.T, uri string, mt engine.MediaType) OpenReply {
	t.Helper()
	resp, err := h.stub.OpenSync(h.ctx(t), command.OpenArgs{URI: uri, MediaType: string(mt)})
	require.NoError(t, err)
	require.Equal(t, command.OK, resp.Result)
	reply, ok := resp.Payload.(OpenReply)
	require.True(t, ok)
	return reply
}

func (h *harness) control(t *testing.T, kind command.Kind, mediaID int, args any) command.Result {
	t.Helper()
	resp, err := h.stub.ControlSync(h.ctx(t), kind, mediaID, args)
	require.NoError(t, err)
	return resp.Result
}
