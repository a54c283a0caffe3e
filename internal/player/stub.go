// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/log"
)

var ErrNotControl = errors.New("not a session control command")

// Response is a command's reply as seen by a synchronous caller.
type Response struct {
	Result  command.Result
	Payload any
}

// Stub is the request-layer adapter. It never blocks on a worker: it
// resolves ids, posts commands and returns.
type Stub struct {
	queue   *command.Queue
	workers Workers
	logger  zerolog.Logger
}

func NewStub(q *command.Queue, workers Workers) *Stub {
	return &Stub{queue: q, workers: workers, logger: log.WithComponent("stub")}
}

// Open posts an OpenSession command.
func (s *Stub) Open(args command.OpenArgs, reply command.Reply) error {
	return s.queue.Post(command.New(command.OpenSession, "", reply, command.WithArgs(args)))
}

// Control posts kind for the session behind mediaID. An unknown id is
// replied with UnknownSession at once and never queued. A Play for a session
// that already has one queued is answered OK without queueing another.
func (s *Stub) Control(kind command.Kind, mediaID int, args any, reply command.Reply) error {
	switch kind {
	case command.KindUnknown, command.OpenSession, command.QuitScheduler:
		return fmt.Errorf("%w: %s", ErrNotControl, kind)
	}

	key := s.workers.ResolveSession(mediaID)
	if key == "" {
		s.logger.Debug().Int(log.FieldMediaID, mediaID).Str(log.FieldCommand, kind.String()).Msg("unknown media id")
		if reply != nil {
			reply(command.UnknownSession, nil)
		}
		return nil
	}
	if kind == command.Stop {
		stop, _ := args.(command.StopArgs)
		stop.PID = mediaID
		args = stop
	}

	cmd := command.New(kind, key, reply, command.WithArgs(args))
	if kind != command.Play {
		return s.queue.Post(cmd)
	}
	posted, err := s.queue.PostIf(cmd, func(v command.View) bool {
		return !v.Exist([]command.Kind{command.Play}, key)
	})
	if err != nil {
		return err
	}
	if !posted {
		s.logger.Debug().Str(log.FieldSessionKey, key).Msg("play already queued, skipped")
		cmd.Complete(command.OK, nil)
	}
	return nil
}

// IssueStop posts a forced internal Stop for a worker found dead.
func (s *Stub) IssueStop(sessionKey string, pid int) {
	cmd := command.New(command.Stop, sessionKey, nil,
		command.WithOrigin(false),
		command.WithArgs(command.StopArgs{PID: pid, Force: true}))
	if err := s.queue.Post(cmd); err != nil {
		s.logger.Error().Err(err).Int(log.FieldPID, pid).Msg("post internal stop failed")
	}
}

// MediaIDByType returns the worker id bound to mt without queueing.
func (s *Stub) MediaIDByType(mt engine.MediaType) int {
	return s.workers.MediaIDByType(mt)
}

// OpenSync posts an OpenSession and waits for its reply or ctx.
func (s *Stub) OpenSync(ctx context.Context, args command.OpenArgs) (Response, error) {
	return wait(ctx, func(r command.Reply) error { return s.Open(args, r) })
}

// ControlSync posts a control command and waits for its reply or ctx. The
// command stays queued when ctx ends first.
func (s *Stub) ControlSync(ctx context.Context, kind command.Kind, mediaID int, args any) (Response, error) {
	return wait(ctx, func(r command.Reply) error { return s.Control(kind, mediaID, args, r) })
}

func wait(ctx context.Context, post func(command.Reply) error) (Response, error) {
	ch := make(chan Response, 1)
	reply := func(res command.Result, payload any) {
		ch <- Response{Result: res, Payload: payload}
	}
	if err := post(reply); err != nil {
		return Response{}, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
