// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ipc talks to player engine workers over newline-delimited JSON on
// unix sockets. Calls are fire-and-forget; their outcome arrives later as a
// notification on the same connection.
package ipc

import "encoding/json"

// Methods understood by a player engine.
const (
	MethodSetURI           = "set_uri"
	MethodPlay             = "play"
	MethodPause            = "pause"
	MethodStop             = "stop"
	MethodSetPosition      = "set_position"
	MethodSetVolume        = "set_volume"
	MethodSetRate          = "set_rate"
	MethodSetSpeed         = "set_speed"
	MethodSetMute          = "set_mute"
	MethodSetSubtitle      = "set_subtitle"
	MethodSetAudioLanguage = "set_audio_language"
	MethodSetVideoWindow   = "set_video_window"
	MethodSetVideoProperty = "set_video_property"
	MethodSwitchChannel    = "switch_channel"
)

// Request is one call line sent to a worker.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Notification codes that complete a call after its acknowledgement. They
// carry the id of the call they complete.
const (
	EventAsyncDone  = "async_done"
	EventSourceInfo = "source_info"
)

// Message is one notification line sent by a worker. ID is set when the
// notification acknowledges or completes a call.
type Message struct {
	Event   string          `json:"event"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Playback states reported in StateInfo.
const (
	StateStopped = "stopped"
	StatePaused  = "paused"
	StatePlaying = "playing"
)

// SourceInfo follows a successful set_uri.
type SourceInfo struct {
	URI        string `json:"uri"`
	Channels   int    `json:"channels,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Seekable   bool   `json:"seekable"`
}

type StateInfo struct {
	State string `json:"state"`
}

type PositionInfo struct {
	PositionMs int64 `json:"positionMs"`
}

type DurationInfo struct {
	DurationMs int64 `json:"durationMs"`
}

// ErrorInfo carries the reason of call_failed and error notifications.
type ErrorInfo struct {
	Message string `json:"message"`
}
