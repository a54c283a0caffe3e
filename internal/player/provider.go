// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player turns client requests into worker calls: Stub queues
// commands from the request layer and Provider executes them on the
// scheduler goroutine.
package player

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/notify"
	"github.com/ManuGH/playerd/internal/scheduler"
)

// OpenReply is the payload of a successful OpenSession.
type OpenReply struct {
	MediaID    int              `json:"mediaId"`
	SessionKey string           `json:"sessionKey"`
	MediaType  engine.MediaType `json:"mediaType"`
	Reused     bool             `json:"reused"`
}

// trickSpeeds are the accepted SetSpeed values.
var trickSpeeds = map[int]bool{-16: true, -8: true, -4: true, -2: true, 1: true, 2: true, 4: true, 8: true, 16: true}

const (
	maxRate       = 4.0
	pictureMin    = -100
	pictureMax    = 100
	notifyTimeout = 2 * time.Second
)

// Provider executes commands against workers. Handle runs on the scheduler
// goroutine; Observe runs on the ipc read goroutines.
type Provider struct {
	workers  Workers
	conns    Connector
	notifier notify.Notifier
	logger   zerolog.Logger

	invMu   sync.Mutex
	invoker Invoker

	mu       sync.Mutex
	sessions map[string]*SessionState
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithNotifier publishes state changes to n.
func WithNotifier(n notify.Notifier) ProviderOption {
	return func(p *Provider) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithInvoker sets where recovery sweeps are scheduled.
func WithInvoker(inv Invoker) ProviderOption {
	return func(p *Provider) { p.invoker = inv }
}

func NewProvider(workers Workers, conns Connector, opts ...ProviderOption) *Provider {
	p := &Provider{
		workers:  workers,
		conns:    conns,
		notifier: notify.Nop{},
		logger:   log.WithComponent("player"),
		sessions: make(map[string]*SessionState),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetInvoker installs the scheduler once it exists.
func (p *Provider) SetInvoker(inv Invoker) {
	p.invMu.Lock()
	p.invoker = inv
	p.invMu.Unlock()
}

// Handle implements scheduler.Handler.
func (p *Provider) Handle(ctx context.Context, aw scheduler.Awaiter, cmd *command.Command) (command.Result, any) {
	var (
		payload any
		err     error
	)
	switch cmd.Kind() {
	case command.OpenSession:
		payload, err = p.open(ctx, aw, cmd)
	case command.Stop:
		err = p.stop(ctx, aw, cmd)
	default:
		err = p.control(ctx, aw, cmd)
	}

	res := ResultFor(err)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "player")
		logger.Warn().Err(err).
			Str(log.FieldCommand, cmd.Kind().String()).
			Str(log.FieldResult, res.String()).
			Msg("command failed")
	}
	return res, payload
}

func (p *Provider) open(ctx context.Context, aw scheduler.Awaiter, cmd *command.Command) (any, error) {
	args, err := argsOf[command.OpenArgs](cmd)
	if err != nil {
		return nil, err
	}
	if args.URI == "" {
		return nil, fmt.Errorf("%w: open without uri", ErrInvalidArgument)
	}
	if args.Channels < 0 {
		return nil, fmt.Errorf("%w: channels %d", ErrInvalidArgument, args.Channels)
	}
	mt := engine.MediaType(args.MediaType)
	if mt == "" {
		mt = engine.MediaAudio
	}

	slot, err := p.workers.AcquireSlot(ctx, mt)
	if err != nil {
		return nil, err
	}
	conn, err := p.conns.Connect(ctx, slot.SessionKey)
	if err != nil {
		p.workers.MarkFailed(slot.PID)
		return nil, err
	}
	p.track(slot)

	id, err := p.call(aw, conn, slot.SessionKey, ipc.MethodSetURI, args)
	if err != nil {
		p.callFailed(slot.PID, err)
		return nil, err
	}
	if mt.IsStreaming() {
		// Network sources reply only once the worker knows the source.
		if err := p.await(aw, slot.SessionKey, id, ipc.MethodSetURI, scheduler.EventSourceInfo); err != nil {
			p.callFailed(slot.PID, err)
			return nil, err
		}
	}
	p.set(slot.SessionKey, notify.AttrSource, args.URI, func(st *SessionState) {
		st.URI = args.URI
		st.State = ipc.StateStopped
		st.PositionMs = 0
	})

	p.logger.Info().
		Int(log.FieldPID, slot.PID).
		Str(log.FieldSessionKey, slot.SessionKey).
		Str(log.FieldMediaType, string(mt)).
		Str(log.FieldURI, args.URI).
		Bool("reused", slot.Reused).
		Msg("session opened")
	return OpenReply{MediaID: slot.PID, SessionKey: slot.SessionKey, MediaType: mt, Reused: slot.Reused}, nil
}

func (p *Provider) stop(ctx context.Context, aw scheduler.Awaiter, cmd *command.Command) error {
	args, _ := cmd.Args().(command.StopArgs)
	key := cmd.SessionKey()
	pid := args.PID
	if pid == 0 {
		pid = p.workers.PIDForSession(key)
	}

	if !args.Force {
		conn, pid, err := p.session(ctx, key)
		if err != nil {
			return err
		}
		if _, err := p.call(aw, conn, key, ipc.MethodStop, nil); err != nil {
			p.callFailed(pid, err)
			return err
		}
		p.set(key, notify.AttrState, ipc.StateStopped, func(st *SessionState) {
			st.State = ipc.StateStopped
			st.PositionMs = 0
		})
		return nil
	}

	if key == "" && pid == 0 {
		return ErrUnknownSession
	}
	// Best effort: only a live, still mapped worker gets the stop call.
	if key != "" && pid != 0 && p.workers.PIDForSession(key) == pid && p.workers.ProbeLiveness(pid) {
		if conn, err := p.conns.Connect(ctx, key); err == nil {
			if _, err := p.call(aw, conn, key, ipc.MethodStop, nil); err != nil {
				p.logger.Debug().Err(err).Int(log.FieldPID, pid).Msg("stop before release failed")
			}
		}
	}
	if pid != 0 {
		if _, err := p.workers.Release(pid); err != nil && !errors.Is(err, engine.ErrUnknownProcess) {
			return err
		}
	}
	p.drop(key, pid)
	return nil
}

func (p *Provider) control(ctx context.Context, aw scheduler.Awaiter, cmd *command.Command) error {
	if cmd.Kind() == command.KindUnknown || cmd.Kind() == command.QuitScheduler {
		return fmt.Errorf("%w: unsupported command %s", ErrInvalidArgument, cmd.Kind())
	}
	key := cmd.SessionKey()
	method, params, apply, err := p.prepare(key, cmd)
	if err != nil {
		return err
	}
	conn, pid, err := p.session(ctx, key)
	if err != nil {
		return err
	}

	id, err := p.call(aw, conn, key, method, params)
	if err != nil {
		p.callFailed(pid, err)
		return err
	}
	if method == ipc.MethodSetPosition {
		// Position changes complete asynchronously in the worker.
		if err := p.await(aw, key, id, method, scheduler.EventAsyncDone); err != nil {
			p.callFailed(pid, err)
			return err
		}
	}
	if apply != nil {
		p.set(key, apply.attr, apply.value, apply.fn)
	}
	return nil
}

type stateUpdate struct {
	attr  string
	value any
	fn    func(*SessionState)
}

// prepare validates cmd and translates it into a worker call.
func (p *Provider) prepare(key string, cmd *command.Command) (string, any, *stateUpdate, error) {
	switch cmd.Kind() {
	case command.Play:
		return ipc.MethodPlay, nil, &stateUpdate{notify.AttrState, ipc.StatePlaying, func(st *SessionState) { st.State = ipc.StatePlaying }}, nil
	case command.Pause:
		return ipc.MethodPause, nil, &stateUpdate{notify.AttrState, ipc.StatePaused, func(st *SessionState) { st.State = ipc.StatePaused }}, nil

	case command.Seek:
		args, err := argsOf[command.SeekArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		st, _ := p.Session(key)
		return p.positionCall(clampPosition(st.PositionMs+args.OffsetMs, st.DurationMs))
	case command.SetPosition:
		args, err := argsOf[command.PositionArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if args.PositionMs < 0 {
			return "", nil, nil, fmt.Errorf("%w: position %d", ErrInvalidArgument, args.PositionMs)
		}
		st, _ := p.Session(key)
		return p.positionCall(clampPosition(args.PositionMs, st.DurationMs))

	case command.SetVolume:
		args, err := argsOf[command.VolumeArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if args.Volume < 0 || args.Volume > 1 {
			return "", nil, nil, fmt.Errorf("%w: volume %.2f outside [0,1]", ErrInvalidArgument, args.Volume)
		}
		return ipc.MethodSetVolume, args, &stateUpdate{notify.AttrVolume, args.Volume, func(st *SessionState) { st.Volume = args.Volume }}, nil
	case command.SetRate:
		args, err := argsOf[command.RateArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if args.Rate <= 0 || args.Rate > maxRate {
			return "", nil, nil, fmt.Errorf("%w: rate %.2f", ErrInvalidArgument, args.Rate)
		}
		return ipc.MethodSetRate, args, &stateUpdate{notify.AttrRate, args.Rate, func(st *SessionState) { st.Rate = args.Rate }}, nil
	case command.SetSpeed:
		args, err := argsOf[command.SpeedArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if !trickSpeeds[args.Speed] {
			return "", nil, nil, fmt.Errorf("%w: speed %d", ErrInvalidArgument, args.Speed)
		}
		return ipc.MethodSetSpeed, args, &stateUpdate{notify.AttrSpeed, args.Speed, func(st *SessionState) { st.Speed = args.Speed }}, nil
	case command.SetMute:
		args, err := argsOf[command.MuteArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		return ipc.MethodSetMute, args, &stateUpdate{notify.AttrMute, args.Mute, func(st *SessionState) { st.Mute = args.Mute }}, nil

	case command.SetSubtitle:
		args, err := argsOf[command.TrackArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		// An empty language turns subtitles off.
		return ipc.MethodSetSubtitle, args, &stateUpdate{"subtitle", args.Language, func(st *SessionState) { st.Subtitle = args.Language }}, nil
	case command.SetAudioLanguage:
		args, err := argsOf[command.TrackArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if args.Language == "" {
			return "", nil, nil, fmt.Errorf("%w: empty audio language", ErrInvalidArgument)
		}
		return ipc.MethodSetAudioLanguage, args, &stateUpdate{"audio_language", args.Language, func(st *SessionState) { st.AudioLanguage = args.Language }}, nil

	case command.SetVideoWindow:
		args, err := argsOf[command.WindowArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if args.Width <= 0 || args.Height <= 0 {
			return "", nil, nil, fmt.Errorf("%w: window %dx%d", ErrInvalidArgument, args.Width, args.Height)
		}
		return ipc.MethodSetVideoWindow, args, &stateUpdate{"window", args, func(st *SessionState) { w := args; st.Window = &w }}, nil
	case command.SetVideoProperty:
		args, err := argsOf[command.VideoPropertyArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		if !args.Property.Valid() || args.Value < pictureMin || args.Value > pictureMax {
			return "", nil, nil, fmt.Errorf("%w: %s=%d", ErrInvalidArgument, args.Property, args.Value)
		}
		return ipc.MethodSetVideoProperty, args, &stateUpdate{string(args.Property), args.Value, func(st *SessionState) {
			if st.Picture == nil {
				st.Picture = make(map[string]int, 3)
			}
			st.Picture[string(args.Property)] = args.Value
		}}, nil
	case command.SwitchChannel:
		args, err := argsOf[command.ChannelArgs](cmd)
		if err != nil {
			return "", nil, nil, err
		}
		return ipc.MethodSwitchChannel, args, &stateUpdate{"main_channel", args.Main, func(st *SessionState) { st.MainChannel = args.Main }}, nil
	}
	return "", nil, nil, fmt.Errorf("%w: unsupported command %s", ErrInvalidArgument, cmd.Kind())
}

func (p *Provider) positionCall(target int64) (string, any, *stateUpdate, error) {
	return ipc.MethodSetPosition, command.PositionArgs{PositionMs: target},
		&stateUpdate{notify.AttrPosition, target, func(st *SessionState) { st.PositionMs = target }}, nil
}

// session resolves a live worker connection for key.
func (p *Provider) session(ctx context.Context, key string) (Caller, int, error) {
	pid := p.workers.PIDForSession(key)
	if key == "" || pid == 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownSession, key)
	}
	conn, err := p.conns.Connect(ctx, key)
	if err != nil {
		p.workers.MarkFailed(pid)
		return nil, pid, err
	}
	return conn, pid, nil
}

// call issues method, waits for its acknowledgement and returns the call id.
func (p *Provider) call(aw scheduler.Awaiter, conn Caller, key, method string, params any) (uint64, error) {
	id, err := conn.Call(method, params)
	if err != nil {
		return 0, err
	}
	return id, p.await(aw, key, id, method, scheduler.EventCallDone)
}

// await waits for success or a failure of call id. Notifications naming
// another call belong to an earlier command that already replied and are
// skipped; notifications without an id are not tied to a call.
func (p *Provider) await(aw scheduler.Awaiter, key string, id uint64, method string, success scheduler.Event) error {
	for {
		n, ok := aw.Await(key, success, scheduler.FailureDefault)
		if n.CallID != 0 && n.CallID != id {
			p.logger.Debug().
				Str(log.FieldSessionKey, key).
				Str(log.FieldEvent, n.Event.String()).
				Uint64("call_id", n.CallID).
				Uint64("awaiting", id).
				Msg("stale notification skipped")
			continue
		}
		if ok {
			return nil
		}
		return awaitError(method, n)
	}
}

func awaitError(method string, n scheduler.Notification) error {
	switch n.Event {
	case scheduler.EventTimeout:
		return fmt.Errorf("%w: %s", ErrCallTimeout, method)
	case scheduler.EventEngineDestroyed:
		return fmt.Errorf("%w: %s", ErrEngineGone, method)
	case scheduler.EventNone:
		return fmt.Errorf("%s: %w", method, context.Canceled)
	default:
		var info ipc.ErrorInfo
		_ = n.Decode(&info)
		return fmt.Errorf("%w: %s: %s", ErrCallFailed, method, info.Message)
	}
}

// callFailed marks the worker failed when the error shows it is gone.
func (p *Provider) callFailed(pid int, err error) {
	if pid != 0 && workerLost(err) {
		p.workers.MarkFailed(pid)
	}
}

func argsOf[T any](cmd *command.Command) (T, error) {
	v, ok := cmd.Args().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s expects %T", ErrInvalidArgument, cmd.Kind(), zero)
	}
	return v, nil
}

// track starts or refreshes the state of slot's session.
func (p *Provider) track(slot engine.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.sessions[slot.SessionKey]; ok && st.MediaID == slot.PID {
		return
	}
	p.sessions[slot.SessionKey] = newSessionState(slot)
}

// set applies fn to key's state and publishes attr.
func (p *Provider) set(key, attr string, value any, fn func(*SessionState)) {
	p.mu.Lock()
	st, ok := p.sessions[key]
	if ok {
		fn(st)
		st.UpdatedAt = time.Now()
	}
	pid := 0
	if ok {
		pid = st.MediaID
	}
	p.mu.Unlock()
	if ok {
		p.publish(notify.Change{SessionKey: key, PID: pid, Attribute: attr, Value: value})
	}
}

// drop forgets everything about a reclaimed session.
func (p *Provider) drop(key string, pid int) {
	if key == "" {
		key = p.keyForPID(pid)
	}
	if key == "" {
		return
	}
	p.conns.Forget(key)
	p.mu.Lock()
	_, had := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if had {
		p.publish(notify.Change{SessionKey: key, PID: pid, Attribute: notify.AttrDestroyed})
	}
	p.logger.Info().Int(log.FieldPID, pid).Str(log.FieldSessionKey, key).Msg("session released")
}

func (p *Provider) keyForPID(pid int) string {
	if pid == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, st := range p.sessions {
		if st.MediaID == pid {
			return key
		}
	}
	return ""
}

func (p *Provider) publish(c notify.Change) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := p.notifier.Notify(ctx, c); err != nil {
		p.logger.Debug().Err(err).Str(log.FieldSessionKey, c.SessionKey).Msg("state change not delivered")
	}
}

// Session returns the state of key.
func (p *Provider) Session(key string) (SessionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.sessions[key]
	if !ok {
		return SessionState{}, false
	}
	return st.clone(), true
}

// Sessions lists all known sessions ordered by media id.
func (p *Provider) Sessions() []SessionState {
	p.mu.Lock()
	out := make([]SessionState, 0, len(p.sessions))
	for _, st := range p.sessions {
		out = append(out, st.clone())
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MediaID < out[j].MediaID })
	return out
}
