// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler executes queued commands one at a time on a dedicated
// goroutine. Handlers may suspend on worker notifications through Await
// without blocking delivery of injected tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
	"github.com/ManuGH/playerd/internal/sema"
	"github.com/ManuGH/playerd/internal/telemetry"
)

// ErrClosed is returned by Notify and Invoke once the loop has exited.
var ErrClosed = errors.New("scheduler: closed")

const (
	defaultAwaitTimeout = 10 * time.Second
	defaultEventBuffer  = 64
	taskBuffer          = 16
)

// State is the scheduler's execution state.
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateAwaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaiting:
		return "awaiting"
	default:
		return "unknown"
	}
}

// Awaiter suspends the running handler until a matching notification arrives.
type Awaiter interface {
	// Await returns (n, true) when an event in success arrives for sessionKey,
	// (n, false) for an event in failure, a timeout or shutdown. Events in
	// neither mask, or for another session, keep waiting. An empty sessionKey
	// matches every session.
	Await(sessionKey string, success, failure Event) (Notification, bool)
}

// Handler executes one command. The returned result completes the command
// unless the handler already completed it.
type Handler interface {
	Handle(ctx context.Context, aw Awaiter, cmd *command.Command) (command.Result, any)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, aw Awaiter, cmd *command.Command) (command.Result, any)

func (f HandlerFunc) Handle(ctx context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
	return f(ctx, aw, cmd)
}

// Scheduler pulls commands from a queue and runs them single-flight.
type Scheduler struct {
	queue   *command.Queue
	handler Handler

	wake   chan struct{}
	events chan Notification
	tasks  chan func()
	done   chan struct{}

	started *sema.Semaphore
	stopped *sema.Semaphore

	ctx    context.Context
	cancel context.CancelFunc

	state        atomic.Int32
	awaitTimeout time.Duration
	eventBuffer  int
	tracer       trace.Tracer
	logger       zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New starts the scheduler goroutine and blocks until its loop is ready.
// The scheduler installs itself as the queue's wake callback.
func New(q *command.Queue, h Handler, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		queue:        q,
		handler:      h,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		started:      sema.New(0),
		stopped:      sema.New(0),
		ctx:          ctx,
		cancel:       cancel,
		awaitTimeout: defaultAwaitTimeout,
		eventBuffer:  defaultEventBuffer,
		tracer:       telemetry.Tracer("playerd/scheduler"),
		logger:       log.WithComponent("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Notification, s.eventBuffer)
	s.tasks = make(chan func(), taskBuffer)

	q.SetWake(s.signal)
	go s.run()
	_ = s.started.Wait(context.Background())

	// Commands posted before the wake callback was installed.
	if q.Len() > 0 {
		s.signal()
	}
	return s
}

// State returns the current execution state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Notify delivers a worker notification to the scheduler goroutine.
// Notifications that arrive while no handler is awaiting are dropped.
func (s *Scheduler) Notify(n Notification) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- n:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Invoke schedules fn to run on the scheduler goroutine, either between
// commands or while a handler is suspended in Await.
func (s *Scheduler) Invoke(fn func()) error {
	if fn == nil {
		return nil
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.tasks <- fn:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close posts QuitScheduler ahead of queued work and waits for the loop to
// exit. If ctx expires first, the in-flight handler's context is cancelled so
// its Await fails. Commands still queued afterwards are discarded unreplied.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		quit := command.New(command.QuitScheduler, "", nil, command.WithOrigin(false))
		if err := s.queue.PostFront(quit); err != nil {
			s.closeErr = err
			return
		}
		if err := s.stopped.Wait(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("scheduler did not stop in time, cancelling in-flight command")
			s.cancel()
			_ = s.stopped.Wait(context.Background())
			s.closeErr = fmt.Errorf("scheduler close: %w", err)
		}
		s.cancel()
		if n := s.queue.Clear(); n > 0 {
			s.logger.Warn().Int("discarded", n).Msg("discarded queued commands on shutdown")
		}
	})
	return s.closeErr
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetSchedulerState(st.String())
}

func (s *Scheduler) run() {
	defer func() {
		close(s.done)
		s.stopped.Notify()
	}()

	s.setState(StateIdle)
	s.logger.Debug().Msg("scheduler loop started")
	s.started.Notify()

	for {
		select {
		case <-s.wake:
			if quit := s.dispatch(); quit {
				s.logger.Info().Msg("scheduler loop stopped")
				return
			}
		case n := <-s.events:
			s.logger.Debug().
				Str(log.FieldEvent, n.Event.String()).
				Str(log.FieldSessionKey, n.SessionKey).
				Msg("event while idle ignored")
		case fn := <-s.tasks:
			s.runTask(fn)
		case <-s.ctx.Done():
			return
		}
	}
}

// dispatch pops and executes one command. It reports whether the loop must exit.
func (s *Scheduler) dispatch() bool {
	cmd, ok := s.queue.Pop()
	if !ok {
		return false
	}
	if cmd.Kind() == command.QuitScheduler {
		cmd.Complete(command.OK, nil)
		return true
	}

	s.execute(cmd)

	// Drain backlog without waiting for another 0->1 transition.
	if s.queue.Len() > 0 {
		s.signal()
	}
	return false
}

func (s *Scheduler) execute(cmd *command.Command) {
	start := time.Now()
	kind := cmd.Kind().String()

	ctx, span := s.tracer.Start(s.ctx, "scheduler.execute",
		trace.WithAttributes(telemetry.CommandAttributes(kind, cmd.SessionKey(), cmd.FromClient())...))
	defer span.End()

	if key := cmd.SessionKey(); key != "" {
		ctx = log.ContextWithSessionKey(ctx, key)
	}

	s.setState(StateDispatching)
	res, payload := s.invokeHandler(ctx, cmd)
	if !cmd.Complete(res, payload) {
		s.logger.Debug().Str(log.FieldCommand, kind).Msg("command completed early by handler")
	}
	s.setState(StateIdle)

	span.SetAttributes(attribute.String(telemetry.CommandResultKey, res.String()))
	if res != command.OK {
		span.SetStatus(codes.Error, res.String())
	}
	metrics.CommandTotal.WithLabelValues(kind, res.String()).Inc()
	metrics.CommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	emitCommandObs(ctx, kind, res.String(), cmd.FromClient())

	s.logger.Debug().
		Str(log.FieldCommand, kind).
		Str(log.FieldSessionKey, cmd.SessionKey()).
		Str(log.FieldResult, res.String()).
		Dur("duration", time.Since(start)).
		Msg("command executed")
}

func (s *Scheduler) invokeHandler(ctx context.Context, cmd *command.Command) (res command.Result, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(log.FieldCommand, cmd.Kind().String()).
				Str(log.FieldSessionKey, cmd.SessionKey()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("command handler panicked")
			res, payload = command.InternalError, nil
		}
	}()
	return s.handler.Handle(ctx, &awaiter{s: s, ctx: ctx}, cmd)
}

func (s *Scheduler) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("scheduled task panicked")
		}
	}()
	fn()
}
