// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"

	"github.com/ManuGH/playerd/internal/command"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
	"github.com/ManuGH/playerd/internal/resilience"
)

var (
	ErrUnknownSession  = errors.New("unknown session")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCallFailed      = errors.New("worker call failed")
	ErrCallTimeout     = errors.New("worker call timed out")
	ErrEngineGone      = errors.New("worker engine destroyed")
)

// ResultFor maps a handler error to the result code replied to the client.
func ResultFor(err error) command.Result {
	switch {
	case err == nil:
		return command.OK
	case errors.Is(err, ErrUnknownSession):
		return command.UnknownSession
	case errors.Is(err, ErrInvalidArgument):
		return command.InvalidArgument
	case errors.Is(err, engine.ErrSpawnThrottled):
		return command.Busy
	case errors.Is(err, engine.ErrCapacity):
		return command.InternalError
	case errors.Is(err, engine.ErrSessionKeyTimeout),
		errors.Is(err, ipc.ErrNotConnected),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, ErrCallFailed),
		errors.Is(err, ErrCallTimeout),
		errors.Is(err, ErrEngineGone),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return command.BackendUnreachable
	default:
		return command.InternalError
	}
}

// workerLost reports whether err means the worker itself is gone.
func workerLost(err error) bool {
	return errors.Is(err, ErrEngineGone) || errors.Is(err, ipc.ErrNotConnected)
}
