// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/scheduler"
)

var ErrNotConnected = errors.New("ipc: not connected")

const (
	maxLineBytes = 1 << 20
	writeTimeout = 2 * time.Second
)

// Sink receives every notification read from a worker.
type Sink func(scheduler.Notification)

// Client is a connection to one worker session.
type Client struct {
	key    string
	conn   net.Conn
	sink   Sink
	logger zerolog.Logger

	nextID  atomic.Uint64
	writeMu sync.Mutex

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the worker socket at path. Every notification is tagged
// with key and handed to sink from the client's read goroutine.
func Dial(ctx context.Context, path, key string, sink Sink) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", key, err)
	}
	c := &Client{
		key:    key,
		conn:   conn,
		sink:   sink,
		logger: log.WithComponent("ipc").With().Str(log.FieldSessionKey, key).Logger(),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SessionKey returns the session this client is bound to.
func (c *Client) SessionKey() string { return c.key }

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call sends method with params and returns the call id the worker will
// acknowledge with call_done or call_failed.
func (c *Client) Call(method string, params any) (uint64, error) {
	select {
	case <-c.done:
		return 0, ErrNotConnected
	default:
	}

	req := Request{ID: c.nextID.Add(1), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("encode %s params: %w", method, err)
		}
		req.Params = raw
	}
	line, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(line); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotConnected, method, err)
	}
	c.logger.Debug().Uint64("call_id", req.ID).Str("method", method).Msg("call sent")
	return req.ID, nil
}

// Close tears down the connection without emitting engine_destroyed. It
// does not wait for the read goroutine, which may be delivering to the sink.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() { close(c.done) })

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		var msg Message
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			c.logger.Warn().Err(err).Msg("malformed notification")
			continue
		}
		ev, ok := scheduler.ParseEvent(msg.Event)
		if !ok || ev == scheduler.EventCommandArrived || ev == scheduler.EventTimeout {
			c.logger.Debug().Str(log.FieldEvent, msg.Event).Msg("ignoring unknown notification")
			continue
		}
		c.deliver(scheduler.Notification{
			Event:      ev,
			SessionKey: c.key,
			CallID:     msg.ID,
			Payload:    msg.Payload,
		})
	}

	if c.closing.Load() {
		return
	}
	if err := sc.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("worker connection failed")
	} else {
		c.logger.Info().Msg("worker closed connection")
	}
	_ = c.conn.Close()
	c.deliver(scheduler.Notification{Event: scheduler.EventEngineDestroyed, SessionKey: c.key})
}

func (c *Client) deliver(n scheduler.Notification) {
	if c.sink != nil {
		c.sink(n)
	}
}
