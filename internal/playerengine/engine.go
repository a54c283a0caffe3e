// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playerengine is the reference worker process. It owns one session,
// listens on <runtimeDir>/<key>.sock and answers the ipc protocol with a
// simulated player.
package playerengine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/log"
)

const (
	maxLineBytes = 1 << 20
	writeTimeout = 2 * time.Second

	defaultTick       = time.Second
	defaultDurationMs = 180000
)

// Environment variables read by ConfigFromEnv besides the runtime dir and
// media type passed by the supervisor.
const (
	EnvTick       = "PLAYERD_ENGINE_TICK"
	EnvDurationMs = "PLAYERD_ENGINE_DURATION_MS"
)

// Config controls one worker.
type Config struct {
	RuntimeDir string
	MediaType  string
	// Tick is the position report interval while playing; zero disables reports.
	Tick time.Duration
	// DurationMs is reported for seekable sources.
	DurationMs int64
}

// ConfigFromEnv builds the worker config from its environment.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		RuntimeDir: os.Getenv(engine.EnvRuntimeDir),
		MediaType:  os.Getenv(engine.EnvMediaType),
		Tick:       defaultTick,
		DurationMs: defaultDurationMs,
	}
	if v := os.Getenv(EnvTick); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvTick, err)
		}
		cfg.Tick = d
	}
	if v := os.Getenv(EnvDurationMs); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvDurationMs, err)
		}
		cfg.DurationMs = n
	}
	if cfg.RuntimeDir == "" {
		return cfg, fmt.Errorf("%s is not set", engine.EnvRuntimeDir)
	}
	return cfg, nil
}

// Engine is a running worker.
type Engine struct {
	cfg    Config
	key    string
	pid    int
	ln     net.Listener
	logger zerolog.Logger

	mu     sync.Mutex
	player *player
	peers  map[*peer]struct{}
}

// New generates the session key and starts listening on its socket. The key
// is announced by Run.
func New(cfg Config) (*Engine, error) {
	if cfg.RuntimeDir == "" {
		return nil, errors.New("playerengine: runtime dir required")
	}
	key := uuid.NewString()
	path := engine.SocketPath(cfg.RuntimeDir, key)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	pid := os.Getpid()
	return &Engine{
		cfg: cfg,
		key: key,
		pid: pid,
		ln:  ln,
		logger: log.WithComponent("playerengine").With().
			Int(log.FieldPID, pid).
			Str(log.FieldSessionKey, key).
			Str(log.FieldMediaType, cfg.MediaType).
			Logger(),
		player: newPlayer(cfg),
		peers:  make(map[*peer]struct{}),
	}, nil
}

// Key returns the session key this worker serves.
func (e *Engine) Key() string { return e.key }

// SocketPath returns the socket clients dial.
func (e *Engine) SocketPath() string { return engine.SocketPath(e.cfg.RuntimeDir, e.key) }

// Run announces the key and serves clients until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if err := engine.WriteKeyFile(e.cfg.RuntimeDir, e.pid, e.key); err != nil {
		_ = e.ln.Close()
		return err
	}
	defer func() {
		if err := engine.RemoveKeyFile(e.cfg.RuntimeDir, e.pid); err != nil {
			e.logger.Warn().Err(err).Msg("failed to remove key file")
		}
	}()
	e.logger.Info().Str(log.FieldPath, e.SocketPath()).Msg("player engine ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = e.ln.Close()
		e.mu.Lock()
		for p := range e.peers {
			_ = p.conn.Close()
		}
		e.mu.Unlock()
		return nil
	})
	g.Go(func() error { return e.accept(gctx, g) })
	if e.cfg.Tick > 0 {
		g.Go(func() error {
			e.tickLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	e.logger.Info().Msg("player engine stopped")
	return err
}

func (e *Engine) accept(ctx context.Context, g *errgroup.Group) error {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		p := &peer{conn: conn}
		e.mu.Lock()
		e.peers[p] = struct{}{}
		e.mu.Unlock()
		g.Go(func() error {
			e.serve(p)
			return nil
		})
	}
}

func (e *Engine) serve(p *peer) {
	defer func() {
		e.mu.Lock()
		delete(e.peers, p)
		e.mu.Unlock()
		_ = p.conn.Close()
	}()
	e.logger.Debug().Msg("client connected")

	sc := bufio.NewScanner(p.conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		var req ipc.Request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			e.logger.Warn().Err(err).Msg("malformed request")
			continue
		}
		e.handle(p, req)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		e.logger.Debug().Err(err).Msg("client read failed")
	}
}

// handle applies req and answers it. The acknowledgement always precedes the
// notifications it caused.
func (e *Engine) handle(p *peer, req ipc.Request) {
	e.mu.Lock()
	events, err := e.player.apply(req.Method, req.Params)
	e.mu.Unlock()

	logger := e.logger.With().Str("method", req.Method).Uint64("id", req.ID).Logger()
	if err != nil {
		logger.Debug().Err(err).Msg("call refused")
		p.send(message("call_failed", req.ID, ipc.ErrorInfo{Message: err.Error()}))
		return
	}
	logger.Debug().Msg("call done")
	p.send(message("call_done", req.ID, nil))
	e.broadcast(completions(req.ID, events)...)
}

// completions tags the notifications that finish call id with it.
func completions(id uint64, events []ipc.Message) []ipc.Message {
	for i := range events {
		switch events[i].Event {
		case ipc.EventAsyncDone, ipc.EventSourceInfo:
			events[i].ID = id
		}
	}
	return events
}

func (e *Engine) tickLoop(ctx context.Context) {
	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.mu.Lock()
			events := e.player.advance(e.cfg.Tick)
			e.mu.Unlock()
			e.broadcast(events...)
		}
	}
}

func (e *Engine) broadcast(msgs ...ipc.Message) {
	if len(msgs) == 0 {
		return
	}
	e.mu.Lock()
	peers := make([]*peer, 0, len(e.peers))
	for p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()
	for _, p := range peers {
		p.send(msgs...)
	}
}

type peer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (p *peer) send(msgs ...ipc.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	for _, m := range msgs {
		line, err := json.Marshal(m)
		if err != nil {
			continue
		}
		if _, err := p.conn.Write(append(line, '\n')); err != nil {
			return
		}
	}
}

func message(code string, id uint64, payload any) ipc.Message {
	m := ipc.Message{Event: code, ID: id}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			m.Payload = raw
		}
	}
	return m
}
