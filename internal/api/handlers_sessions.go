// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/player"
)

const maxBodyBytes = 64 << 10

// action binds a URL action to a command kind and its argument decoder.
type action struct {
	kind   command.Kind
	decode func(body []byte) (any, error)
}

func noArgs([]byte) (any, error) { return nil, nil }

func argsOf[T any](body []byte) (any, error) {
	var v T
	if len(body) == 0 {
		return nil, errors.New("request body required")
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// optionalArgsOf accepts an empty body as the zero value.
func optionalArgsOf[T any](body []byte) (any, error) {
	var v T
	if len(body) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var actions = map[string]action{
	"play":           {command.Play, noArgs},
	"pause":          {command.Pause, noArgs},
	"stop":           {command.Stop, optionalArgsOf[command.StopArgs]},
	"seek":           {command.Seek, argsOf[command.SeekArgs]},
	"position":       {command.SetPosition, argsOf[command.PositionArgs]},
	"volume":         {command.SetVolume, argsOf[command.VolumeArgs]},
	"rate":           {command.SetRate, argsOf[command.RateArgs]},
	"speed":          {command.SetSpeed, argsOf[command.SpeedArgs]},
	"mute":           {command.SetMute, argsOf[command.MuteArgs]},
	"subtitle":       {command.SetSubtitle, argsOf[command.TrackArgs]},
	"audio-language": {command.SetAudioLanguage, argsOf[command.TrackArgs]},
	"video-window":   {command.SetVideoWindow, argsOf[command.WindowArgs]},
	"video-property": {command.SetVideoProperty, argsOf[command.VideoPropertyArgs]},
	"channel":        {command.SwitchChannel, argsOf[command.ChannelArgs]},
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	body, err := readBody(r)
	if err != nil {
		writeInvalid(w, err.Error())
		return
	}
	raw, err := optionalArgsOf[command.OpenArgs](body)
	if err != nil {
		writeInvalid(w, fmt.Sprintf("decode body: %v", err))
		return
	}
	args := raw.(command.OpenArgs)

	resp, err := s.deps.Sessions.OpenSync(r.Context(), args)
	if err != nil {
		s.writePostError(w, r, err)
		return
	}
	mediaID := 0
	if reply, ok := resp.Payload.(player.OpenReply); ok {
		mediaID = reply.MediaID
	}
	logger.Debug().
		Str(log.FieldMediaType, args.MediaType).
		Str(log.FieldResult, resp.Result.String()).
		Int(log.FieldMediaID, mediaID).
		Msg("open session")
	writeResult(w, resp.Result, mediaID, resp.Payload)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	mediaID, err := strconv.Atoi(chi.URLParam(r, "mediaId"))
	if err != nil || mediaID <= 0 {
		writeInvalid(w, "mediaId must be a positive integer")
		return
	}
	act, ok := actions[chi.URLParam(r, "action")]
	if !ok {
		writeJSON(w, http.StatusNotFound, resultResponse{Result: command.InvalidArgument.String(), Error: "unknown action"})
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeInvalid(w, err.Error())
		return
	}
	args, err := act.decode(body)
	if err != nil {
		writeInvalid(w, fmt.Sprintf("decode body: %v", err))
		return
	}

	resp, err := s.deps.Sessions.ControlSync(r.Context(), act.kind, mediaID, args)
	if err != nil {
		s.writePostError(w, r, err)
		return
	}
	writeResult(w, resp.Result, mediaID, resp.Payload)
}

// writePostError reports a command that was never answered.
func (s *Server) writePostError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	switch {
	case errors.Is(err, player.ErrNotControl):
		writeInvalid(w, err.Error())
	case r.Context().Err() != nil:
		logger.Warn().Err(err).Msg("request ended before reply")
		writeJSON(w, http.StatusGatewayTimeout, resultResponse{Result: command.Busy.String(), Error: "timed out waiting for reply"})
	default:
		logger.Error().Err(err).Msg("post command failed")
		writeJSON(w, http.StatusServiceUnavailable, resultResponse{Result: command.InternalError.String(), Error: err.Error()})
	}
}

func (s *Server) handleMediaType(w http.ResponseWriter, r *http.Request) {
	mt := engine.MediaType(chi.URLParam(r, "type"))
	id := s.deps.Sessions.MediaIDByType(mt)
	if id <= 0 {
		writeJSON(w, http.StatusNotFound, resultResponse{Result: command.UnknownSession.String()})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: command.OK.String(), MediaID: id})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	var out []player.SessionState
	if s.deps.State != nil {
		out = s.deps.State.Sessions()
	}
	if out == nil {
		out = []player.SessionState{}
	}
	writeJSON(w, http.StatusOK, out)
}
