// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/resilience"
)

// PoolConfig tunes dialing.
type PoolConfig struct {
	RuntimeDir   string
	DialTimeout  time.Duration
	DialRetries  int
	RetryBackoff time.Duration
	// Breaker settings per session.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// DefaultPoolConfig returns pool defaults for runtimeDir.
func DefaultPoolConfig(runtimeDir string) PoolConfig {
	return PoolConfig{
		RuntimeDir:       runtimeDir,
		DialTimeout:      time.Second,
		DialRetries:      10,
		RetryBackoff:     50 * time.Millisecond,
		BreakerThreshold: 3,
		BreakerReset:     5 * time.Second,
	}
}

// Pool caches one Client per session key.
type Pool struct {
	cfg    PoolConfig
	sink   Sink
	logger zerolog.Logger

	mu       sync.Mutex
	clients  map[string]*Client
	breakers map[string]*resilience.CircuitBreaker
	closed   bool
}

// NewPool returns an empty pool delivering notifications to sink.
func NewPool(cfg PoolConfig, sink Sink) *Pool {
	def := DefaultPoolConfig(cfg.RuntimeDir)
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.DialRetries <= 0 {
		cfg.DialRetries = def.DialRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Pool{
		cfg:      cfg,
		sink:     sink,
		logger:   log.WithComponent("ipc"),
		clients:  make(map[string]*Client),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Get returns the live client for key, dialing the worker socket if needed.
// The socket may not exist yet right after the key was announced, so the
// dial is retried with a short backoff.
func (p *Pool) Get(ctx context.Context, key string) (*Client, error) {
	if key == "" {
		return nil, ErrNotConnected
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrNotConnected
	}
	if c, ok := p.clients[key]; ok {
		select {
		case <-c.Done():
			delete(p.clients, key)
		default:
			p.mu.Unlock()
			return c, nil
		}
	}
	cb, ok := p.breakers[key]
	if !ok {
		cb = resilience.NewCircuitBreaker("ipc", p.cfg.BreakerThreshold, p.cfg.BreakerReset)
		p.breakers[key] = cb
	}
	p.mu.Unlock()

	var c *Client
	err := cb.Execute(func() error {
		var err error
		c, err = p.dial(ctx, key)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotConnected, key, err)
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = c.Close()
		return nil, ErrNotConnected
	}
	if existing, ok := p.clients[key]; ok {
		// Lost a dial race; keep the first connection.
		_ = c.Close()
		return existing, nil
	}
	p.clients[key] = c
	return c, nil
}

func (p *Pool) dial(ctx context.Context, key string) (*Client, error) {
	path := engine.SocketPath(p.cfg.RuntimeDir, key)
	var lastErr error
	for attempt := 0; attempt < p.cfg.DialRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryBackoff):
			}
		}
		dctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		c, err := Dial(dctx, path, key, p.sink)
		cancel()
		if err == nil {
			p.logger.Debug().Str(log.FieldSessionKey, key).Str(log.FieldPath, path).Msg("connected to worker")
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrNotConnected, lastErr)
}

// Drop closes and forgets the client for key. The breaker is kept so a
// session that keeps failing stays throttled.
func (p *Pool) Drop(key string) {
	p.mu.Lock()
	c, ok := p.clients[key]
	delete(p.clients, key)
	p.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// Forget drops the client and the breaker of a session that no longer exists.
func (p *Pool) Forget(key string) {
	p.Drop(key)
	p.mu.Lock()
	delete(p.breakers, key)
	p.mu.Unlock()
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every client. Get fails afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
