// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

// OpenArgs requests a worker for a media type and loads a source into it.
type OpenArgs struct {
	URI       string `json:"uri"`
	Channels  int    `json:"channels"`
	MediaType string `json:"mediaType"`
}

// StopArgs addresses the worker by pid so a forced stop can reclaim it.
type StopArgs struct {
	PID   int  `json:"-"`
	Force bool `json:"forceKill"`
}

// SeekArgs moves relative to the last reported position.
type SeekArgs struct {
	OffsetMs int64 `json:"offsetMs"`
}

type PositionArgs struct {
	PositionMs int64 `json:"positionMs"`
}

type VolumeArgs struct {
	Volume float64 `json:"volume"`
}

type RateArgs struct {
	Rate float64 `json:"rate"`
}

type SpeedArgs struct {
	Speed int `json:"speed"`
}

type MuteArgs struct {
	Mute bool `json:"mute"`
}

// TrackArgs selects a subtitle or audio track by language code.
type TrackArgs struct {
	Language string `json:"language"`
}

type WindowArgs struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VideoProperty names an adjustable picture property.
type VideoProperty string

const (
	Brightness VideoProperty = "brightness"
	Contrast   VideoProperty = "contrast"
	Saturation VideoProperty = "saturation"
)

func (p VideoProperty) Valid() bool {
	switch p {
	case Brightness, Contrast, Saturation:
		return true
	}
	return false
}

type VideoPropertyArgs struct {
	Property VideoProperty `json:"property"`
	Value    int           `json:"value"`
}

// ChannelArgs switches the output channel (main or auxiliary).
type ChannelArgs struct {
	Main bool `json:"main"`
}
