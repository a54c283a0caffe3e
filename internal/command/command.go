// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package command defines the unit of work executed by the scheduler and the
// FIFO queue that feeds it.
package command

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind tags the operation a Command requests.
type Kind int

const (
	KindUnknown Kind = iota
	OpenSession
	Play
	Pause
	Stop
	Seek
	SetPosition
	SetVolume
	SetRate
	SetSpeed
	SetMute
	SetSubtitle
	SetAudioLanguage
	SetVideoWindow
	SetVideoProperty
	SwitchChannel
	QuitScheduler
)

var kindNames = map[Kind]string{
	OpenSession:      "open_session",
	Play:             "play",
	Pause:            "pause",
	Stop:             "stop",
	Seek:             "seek",
	SetPosition:      "set_position",
	SetVolume:        "set_volume",
	SetRate:          "set_rate",
	SetSpeed:         "set_speed",
	SetMute:          "set_mute",
	SetSubtitle:      "set_subtitle",
	SetAudioLanguage: "set_audio_language",
	SetVideoWindow:   "set_video_window",
	SetVideoProperty: "set_video_property",
	SwitchChannel:    "switch_channel",
	QuitScheduler:    "quit_scheduler",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Result is the outcome code handed to a Command's reply.
type Result int

const (
	OK Result = iota
	BackendUnreachable
	InternalError
	UnknownSession
	InvalidArgument
	Busy
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case BackendUnreachable:
		return "backend_unreachable"
	case InternalError:
		return "internal_error"
	case UnknownSession:
		return "unknown_session"
	case InvalidArgument:
		return "invalid_argument"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Reply is the one-shot completion continuation of a Command.
type Reply func(res Result, payload any)

// Command is one requested operation bound to a target session.
// Its fields are immutable after New; only the completion state changes.
type Command struct {
	kind       Kind
	sessionKey string
	fromClient bool
	args       any
	reply      Reply
	createdAt  time.Time

	once sync.Once
	done atomic.Bool
}

// Option customizes a Command at construction.
type Option func(*Command)

// WithArgs attaches the typed arguments of the operation.
func WithArgs(args any) Option {
	return func(c *Command) { c.args = args }
}

// WithOrigin marks whether the command came from an external client request.
// Client commands are subject to duplicate suppression; internal ones are not.
func WithOrigin(fromClient bool) Option {
	return func(c *Command) { c.fromClient = fromClient }
}

// New builds a Command. A nil reply is allowed for internal commands whose
// outcome nobody waits on.
func New(kind Kind, sessionKey string, reply Reply, opts ...Option) *Command {
	c := &Command{
		kind:       kind,
		sessionKey: sessionKey,
		fromClient: true,
		reply:      reply,
		createdAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Command) Kind() Kind           { return c.kind }
func (c *Command) SessionKey() string   { return c.sessionKey }
func (c *Command) FromClient() bool     { return c.fromClient }
func (c *Command) Args() any            { return c.args }
func (c *Command) CreatedAt() time.Time { return c.createdAt }
func (c *Command) Completed() bool      { return c.done.Load() }

// Complete fires the reply continuation. Only the first call has an effect;
// it reports whether this call was the one that completed the command.
func (c *Command) Complete(res Result, payload any) bool {
	fired := false
	c.once.Do(func() {
		fired = true
		c.done.Store(true)
		if c.reply != nil {
			c.reply(res, payload)
		}
	})
	return fired
}
