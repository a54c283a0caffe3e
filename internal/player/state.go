// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"time"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
)

// SessionState is the last known playback state of one session.
type SessionState struct {
	SessionKey    string              `json:"sessionKey"`
	MediaID       int                 `json:"mediaId"`
	MediaType     engine.MediaType    `json:"mediaType"`
	URI           string              `json:"uri,omitempty"`
	State         string              `json:"state"`
	PositionMs    int64               `json:"positionMs"`
	DurationMs    int64               `json:"durationMs,omitempty"`
	Seekable      bool                `json:"seekable"`
	Volume        float64             `json:"volume"`
	Mute          bool                `json:"mute"`
	Rate          float64             `json:"rate"`
	Speed         int                 `json:"speed"`
	Subtitle      string              `json:"subtitle,omitempty"`
	AudioLanguage string              `json:"audioLanguage,omitempty"`
	Window        *command.WindowArgs `json:"window,omitempty"`
	Picture       map[string]int      `json:"picture,omitempty"`
	MainChannel   bool                `json:"mainChannel"`
	LastError     string              `json:"lastError,omitempty"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func newSessionState(slot engine.Slot) *SessionState {
	return &SessionState{
		SessionKey:  slot.SessionKey,
		MediaID:     slot.PID,
		MediaType:   slot.MediaType,
		State:       ipc.StateStopped,
		Volume:      1,
		Rate:        1,
		Speed:       1,
		MainChannel: true,
		UpdatedAt:   time.Now(),
	}
}

func (s *SessionState) clone() SessionState {
	out := *s
	if s.Window != nil {
		w := *s.Window
		out.Window = &w
	}
	if s.Picture != nil {
		out.Picture = make(map[string]int, len(s.Picture))
		for k, v := range s.Picture {
			out.Picture[k] = v
		}
	}
	return out
}

// clampPosition bounds a seek target to the known duration.
func clampPosition(pos, duration int64) int64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}
