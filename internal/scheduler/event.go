// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"encoding/json"
	"strings"
)

// Event is a bitmask of worker notification codes.
type Event uint32

const EventNone Event = 0

const (
	EventCommandArrived Event = 1 << iota
	EventCallDone
	EventCallFailed
	EventAsyncDone
	EventSourceInfo
	EventStateChanged
	EventPosition
	EventDuration
	EventEndOfStream
	EventError
	EventEngineDestroyed
	EventTimeout
)

// FailureDefault is the failure mask most handlers await with.
const FailureDefault = EventCallFailed | EventError | EventEngineDestroyed

var eventNames = []struct {
	ev   Event
	name string
}{
	{EventCommandArrived, "command_arrived"},
	{EventCallDone, "call_done"},
	{EventCallFailed, "call_failed"},
	{EventAsyncDone, "async_done"},
	{EventSourceInfo, "source_info"},
	{EventStateChanged, "state_changed"},
	{EventPosition, "position"},
	{EventDuration, "duration"},
	{EventEndOfStream, "end_of_stream"},
	{EventError, "error"},
	{EventEngineDestroyed, "engine_destroyed"},
	{EventTimeout, "timeout"},
}

func (e Event) String() string {
	if e == EventNone {
		return "none"
	}
	var parts []string
	for _, n := range eventNames {
		if e&n.ev != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// ParseEvent maps a single wire code to its Event bit.
func ParseEvent(code string) (Event, bool) {
	for _, n := range eventNames {
		if n.name == code {
			return n.ev, true
		}
	}
	return EventNone, false
}

// Notification is one event delivered by a worker, tagged with its session.
type Notification struct {
	Event      Event
	SessionKey string
	CallID     uint64
	Payload    json.RawMessage
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (n Notification) Decode(v any) error {
	if len(n.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(n.Payload, v)
}
