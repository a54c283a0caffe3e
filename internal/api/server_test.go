// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playerd/internal/api/middleware"
	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/health"
	"github.com/ManuGH/playerd/internal/player"
)

type controlCall struct {
	kind    command.Kind
	mediaID int
	args    any
}

type fakeSessions struct {
	mu       sync.Mutex
	open     []command.OpenArgs
	controls []controlCall
	result   command.Result
	err      error
	byType   map[engine.MediaType]int
}

func (f *fakeSessions) OpenSync(_ context.Context, args command.OpenArgs) (player.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = append(f.open, args)
	if f.err != nil {
		return player.Response{}, f.err
	}
	if f.result != command.OK {
		return player.Response{Result: f.result}, nil
	}
	return player.Response{Result: command.OK, Payload: player.OpenReply{
		MediaID: 4242, SessionKey: "k", MediaType: engine.MediaType(args.MediaType),
	}}, nil
}

func (f *fakeSessions) ControlSync(_ context.Context, kind command.Kind, mediaID int, args any) (player.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlCall{kind, mediaID, args})
	if f.err != nil {
		return player.Response{}, f.err
	}
	return player.Response{Result: f.result}, nil
}

func (f *fakeSessions) MediaIDByType(mt engine.MediaType) int { return f.byType[mt] }

type fakeRegistry struct{}

func (fakeRegistry) Snapshot() []engine.WorkerInfo {
	return []engine.WorkerInfo{{PID: 7, SessionKey: "k7", MediaType: engine.MediaVideo, Slotted: true, Counted: true}}
}
func (fakeRegistry) Live() int { return 1 }

type fakeState struct{}

func (fakeState) Sessions() []player.SessionState {
	return []player.SessionState{{SessionKey: "k7", MediaID: 7, State: "playing"}}
}

func newTestServer(s *fakeSessions) *Server {
	return New(Deps{Sessions: s, Registry: fakeRegistry{}, State: fakeState{}, MaxInstances: 14}, middleware.StackConfig{})
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, resultResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var out resultResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestOpenSession(t *testing.T) {
	fs := &fakeSessions{}
	srv := newTestServer(fs)

	rec, out := do(t, srv, http.MethodPost, "/api/v1/sessions", `{"uri":"file:///a.mp3","mediaType":"video"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out.Result)
	assert.Equal(t, 4242, out.MediaID)
	require.Len(t, fs.open, 1)
	assert.Equal(t, command.OpenArgs{URI: "file:///a.mp3", MediaType: "video"}, fs.open[0])
}

func TestOpenSession_EmptyBodyUsesDefaults(t *testing.T) {
	fs := &fakeSessions{}
	srv := newTestServer(fs)

	rec, _ := do(t, srv, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, command.OpenArgs{}, fs.open[0])
}

func TestOpenSession_BadJSON(t *testing.T) {
	fs := &fakeSessions{}
	rec, out := do(t, newTestServer(fs), http.MethodPost, "/api/v1/sessions", `{"uri":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", out.Result)
	assert.Empty(t, fs.open)
}

func TestControl_DecodesArguments(t *testing.T) {
	tests := []struct {
		action string
		body   string
		kind   command.Kind
		args   any
	}{
		{"play", "", command.Play, nil},
		{"pause", "", command.Pause, nil},
		{"stop", "", command.Stop, command.StopArgs{}},
		{"stop", `{"forceKill":true}`, command.Stop, command.StopArgs{Force: true}},
		{"seek", `{"offsetMs":-5000}`, command.Seek, command.SeekArgs{OffsetMs: -5000}},
		{"position", `{"positionMs":1200}`, command.SetPosition, command.PositionArgs{PositionMs: 1200}},
		{"volume", `{"volume":0.5}`, command.SetVolume, command.VolumeArgs{Volume: 0.5}},
		{"rate", `{"rate":1.5}`, command.SetRate, command.RateArgs{Rate: 1.5}},
		{"speed", `{"speed":-4}`, command.SetSpeed, command.SpeedArgs{Speed: -4}},
		{"mute", `{"mute":true}`, command.SetMute, command.MuteArgs{Mute: true}},
		{"subtitle", `{"language":"de"}`, command.SetSubtitle, command.TrackArgs{Language: "de"}},
		{"audio-language", `{"language":"en"}`, command.SetAudioLanguage, command.TrackArgs{Language: "en"}},
		{"video-window", `{"x":1,"y":2,"width":3,"height":4}`, command.SetVideoWindow, command.WindowArgs{X: 1, Y: 2, Width: 3, Height: 4}},
		{"video-property", `{"property":"contrast","value":10}`, command.SetVideoProperty, command.VideoPropertyArgs{Property: command.Contrast, Value: 10}},
		{"channel", `{"main":false}`, command.SwitchChannel, command.ChannelArgs{Main: false}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			fs := &fakeSessions{}
			rec, out := do(t, newTestServer(fs), http.MethodPost, "/api/v1/sessions/77/"+tt.action, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, 77, out.MediaID)
			require.Len(t, fs.controls, 1)
			assert.Equal(t, controlCall{tt.kind, 77, tt.args}, fs.controls[0])
		})
	}
}

func TestControl_RejectsBadRequests(t *testing.T) {
	fs := &fakeSessions{}
	srv := newTestServer(fs)

	rec, _ := do(t, srv, http.MethodPost, "/api/v1/sessions/abc/play", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/sessions/5/rewind", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/sessions/5/volume", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/sessions/5/volume", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, fs.controls)
}

func TestControl_ResultStatus(t *testing.T) {
	tests := []struct {
		res    command.Result
		status int
	}{
		{command.OK, http.StatusOK},
		{command.InvalidArgument, http.StatusBadRequest},
		{command.UnknownSession, http.StatusNotFound},
		{command.Busy, http.StatusTooManyRequests},
		{command.BackendUnreachable, http.StatusBadGateway},
		{command.InternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.res.String(), func(t *testing.T) {
			fs := &fakeSessions{result: tt.res}
			rec, out := do(t, newTestServer(fs), http.MethodPost, "/api/v1/sessions/9/play", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.res.String(), out.Result)
		})
	}
}

func TestControl_PostErrors(t *testing.T) {
	fs := &fakeSessions{err: errors.New("post refused")}
	rec, out := do(t, newTestServer(fs), http.MethodPost, "/api/v1/sessions/9/play", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "internal_error", out.Result)

	fs = &fakeSessions{err: player.ErrNotControl}
	rec, _ = do(t, newTestServer(fs), http.MethodPost, "/api/v1/sessions/9/play", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControl_ContextEnded(t *testing.T) {
	fs := &fakeSessions{err: context.Canceled}
	srv := newTestServer(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/9/play", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestMediaTypeLookup(t *testing.T) {
	fs := &fakeSessions{byType: map[engine.MediaType]int{engine.MediaVideo: 31}}
	srv := newTestServer(fs)

	rec, out := do(t, srv, http.MethodGet, "/api/v1/media-types/video", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 31, out.MediaID)

	rec, out = do(t, srv, http.MethodGet, "/api/v1/media-types/stream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_session", out.Result)
}

func TestWorkersAndSessions(t *testing.T) {
	srv := newTestServer(&fakeSessions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var workers workersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workers))
	assert.Equal(t, 1, workers.Live)
	assert.Equal(t, 14, workers.MaxInstances)
	require.Len(t, workers.Workers, 1)
	assert.Equal(t, 7, workers.Workers[0].PID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []player.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "playing", sessions[0].State)
}

func TestHealth(t *testing.T) {
	srv := New(Deps{Sessions: &fakeSessions{}}, middleware.StackConfig{})
	rec, _ := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewFuncChecker("journal", func(context.Context) error {
		return errors.New("journal closed")
	}))
	srv = New(Deps{Sessions: &fakeSessions{}, Health: hm}, middleware.StackConfig{})

	rec, _ = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "journal closed")
}
