// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

// MediaType names a logical worker slot. The set is open: unknown types get
// a slot created on first use.
type MediaType string

const (
	// MediaAudio is the default single-instance slot (local audio playback).
	MediaAudio         MediaType = "audio"
	MediaVideo         MediaType = "video"
	MediaUSBAudio1     MediaType = "usb_audio1"
	MediaUSBAudio2     MediaType = "usb_audio2"
	MediaUSBVideo1     MediaType = "usb_video1"
	MediaUSBVideo2     MediaType = "usb_video2"
	MediaStream        MediaType = "stream"
	MediaNatureSound   MediaType = "nature_sound"
	MediaManualVideo   MediaType = "manual_video"
	MediaRecordingPlay MediaType = "recording_play"
	MediaDVRSFront     MediaType = "dvrs_front"
	MediaDVRSRear      MediaType = "dvrs_rear"
	MediaKidsVideo     MediaType = "kids_video"
	MediaAudioStream   MediaType = "audio_stream"
)

// KnownMediaTypes lists the slots pre-registered at startup.
var KnownMediaTypes = []MediaType{
	MediaVideo, MediaUSBAudio1, MediaUSBAudio2, MediaUSBVideo1, MediaUSBVideo2,
	MediaStream, MediaNatureSound, MediaManualVideo, MediaRecordingPlay,
	MediaDVRSFront, MediaDVRSRear, MediaKidsVideo, MediaAudioStream,
}

// IsDefault reports whether t is the privileged single-instance slot.
func (t MediaType) IsDefault() bool { return t == MediaAudio }

// IsStreaming reports whether t plays network sources. Streaming slots skip
// the pending-failure check and reply to open only after the source is known.
func (t MediaType) IsStreaming() bool {
	switch t {
	case MediaStream, MediaAudioStream:
		return true
	}
	return false
}

// ForceResetOnLookup reports whether looking up t's worker id resets it.
// These slots are re-created for every new source.
func (t MediaType) ForceResetOnLookup() bool {
	return t == MediaAudio || t == MediaNatureSound
}

func (t MediaType) Valid() bool { return t != "" }
