// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playerengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine/ipc"
)

var (
	errNoSource      = errors.New("no source loaded")
	errNotSeekable   = errors.New("source is not seekable")
	errUnknownMethod = errors.New("unknown method")
)

// player is the simulated playback state of one session.
type player struct {
	durationMs int64

	uri        string
	channels   int
	state      string
	positionMs int64
	duration   int64
	seekable   bool

	volume        float64
	mute          bool
	rate          float64
	speed         int
	subtitle      string
	audioLanguage string
	window        command.WindowArgs
	picture       map[command.VideoProperty]int
	mainChannel   bool
}

func newPlayer(cfg Config) *player {
	return &player{
		durationMs:  cfg.DurationMs,
		state:       ipc.StateStopped,
		volume:      1,
		rate:        1,
		speed:       1,
		picture:     make(map[command.VideoProperty]int, 3),
		mainChannel: true,
	}
}

// apply executes method and returns the notifications it causes.
func (p *player) apply(method string, params json.RawMessage) ([]ipc.Message, error) {
	switch method {
	case ipc.MethodSetURI:
		var args command.OpenArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		return p.load(args)

	case ipc.MethodPlay:
		if p.uri == "" {
			return nil, errNoSource
		}
		return p.transition(ipc.StatePlaying), nil
	case ipc.MethodPause:
		if p.uri == "" {
			return nil, errNoSource
		}
		return p.transition(ipc.StatePaused), nil
	case ipc.MethodStop:
		p.positionMs = 0
		return p.transition(ipc.StateStopped), nil

	case ipc.MethodSetPosition:
		var args command.PositionArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		if p.uri == "" {
			return nil, errNoSource
		}
		if !p.seekable {
			return nil, errNotSeekable
		}
		p.positionMs = args.PositionMs
		if p.positionMs < 0 {
			p.positionMs = 0
		}
		if p.duration > 0 && p.positionMs > p.duration {
			p.positionMs = p.duration
		}
		return []ipc.Message{
			message(ipc.EventAsyncDone, 0, nil),
			message("position", 0, ipc.PositionInfo{PositionMs: p.positionMs}),
		}, nil

	case ipc.MethodSetVolume:
		var args command.VolumeArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		if args.Volume < 0 || args.Volume > 1 {
			return nil, fmt.Errorf("volume %.2f out of range", args.Volume)
		}
		p.volume = args.Volume
	case ipc.MethodSetRate:
		var args command.RateArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		if args.Rate <= 0 {
			return nil, fmt.Errorf("rate %.2f out of range", args.Rate)
		}
		p.rate = args.Rate
	case ipc.MethodSetSpeed:
		var args command.SpeedArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		if args.Speed == 0 {
			return nil, errors.New("speed must not be zero")
		}
		p.speed = args.Speed
	case ipc.MethodSetMute:
		var args command.MuteArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		p.mute = args.Mute
	case ipc.MethodSetSubtitle:
		var args command.TrackArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		p.subtitle = args.Language
	case ipc.MethodSetAudioLanguage:
		var args command.TrackArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		p.audioLanguage = args.Language
	case ipc.MethodSetVideoWindow:
		var args command.WindowArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		p.window = args
	case ipc.MethodSetVideoProperty:
		var args command.VideoPropertyArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		if !args.Property.Valid() {
			return nil, fmt.Errorf("unknown video property %q", args.Property)
		}
		p.picture[args.Property] = args.Value
	case ipc.MethodSwitchChannel:
		var args command.ChannelArgs
		if err := decode(params, &args); err != nil {
			return nil, err
		}
		p.mainChannel = args.Main

	default:
		return nil, fmt.Errorf("%w %q", errUnknownMethod, method)
	}
	return nil, nil
}

// load replaces the source. Network sources are live: no duration, no seeking.
func (p *player) load(args command.OpenArgs) ([]ipc.Message, error) {
	if args.URI == "" {
		return nil, errors.New("empty uri")
	}
	u, err := url.Parse(args.URI)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	live := false
	switch u.Scheme {
	case "", "file":
	case "http", "https", "rtsp", "udp":
		live = true
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	p.uri = args.URI
	p.channels = args.Channels
	p.positionMs = 0
	p.seekable = !live
	p.duration = 0
	if !live {
		p.duration = p.durationMs
	}

	events := []ipc.Message{message(ipc.EventSourceInfo, 0, ipc.SourceInfo{
		URI:        p.uri,
		Channels:   p.channels,
		DurationMs: p.duration,
		Seekable:   p.seekable,
	})}
	if p.duration > 0 {
		events = append(events, message("duration", 0, ipc.DurationInfo{DurationMs: p.duration}))
	}
	return append(events, p.transition(ipc.StateStopped)...), nil
}

func (p *player) transition(state string) []ipc.Message {
	p.state = state
	return []ipc.Message{message("state_changed", 0, ipc.StateInfo{State: state})}
}

// advance moves a playing source forward by d scaled by rate and speed.
func (p *player) advance(d time.Duration) []ipc.Message {
	if p.state != ipc.StatePlaying {
		return nil
	}
	step := float64(d.Milliseconds()) * p.rate * float64(p.speed)
	p.positionMs += int64(step)
	if p.positionMs < 0 {
		p.positionMs = 0
	}
	if p.duration > 0 && p.positionMs >= p.duration {
		p.positionMs = p.duration
		events := []ipc.Message{
			message("position", 0, ipc.PositionInfo{PositionMs: p.positionMs}),
			message("end_of_stream", 0, nil),
		}
		return append(events, p.transition(ipc.StateStopped)...)
	}
	return []ipc.Message{message("position", 0, ipc.PositionInfo{PositionMs: p.positionMs})}
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return errors.New("missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
