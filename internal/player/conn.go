// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"

	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/engine/ipc"
)

// Caller issues one asynchronous call to a worker and returns its call id.
type Caller interface {
	Call(method string, params any) (uint64, error)
}

// Connector hands out the per-session worker proxy.
type Connector interface {
	Connect(ctx context.Context, sessionKey string) (Caller, error)
	Forget(sessionKey string)
}

// Workers is the part of the supervisor the player depends on.
type Workers interface {
	AcquireSlot(ctx context.Context, mt engine.MediaType) (engine.Slot, error)
	ResolveSession(pid int) string
	PIDForSession(key string) int
	ProbeLiveness(pid int) bool
	MarkFailed(pid int)
	MediaIDByType(mt engine.MediaType) int
	Release(pid int) (string, error)
	CheckAndRecoverDeadWorkers() int
}

// Invoker runs a function on the scheduler goroutine.
type Invoker interface {
	Invoke(fn func()) error
}

type poolConnector struct {
	pool *ipc.Pool
}

// PoolConnector adapts an ipc.Pool to Connector.
func PoolConnector(pool *ipc.Pool) Connector {
	return poolConnector{pool: pool}
}

func (c poolConnector) Connect(ctx context.Context, key string) (Caller, error) {
	cl, err := c.pool.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func (c poolConnector) Forget(key string) { c.pool.Forget(key) }
