// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import "errors"

var (
	// ErrCapacity is returned when creating a worker would exceed the pool ceiling.
	ErrCapacity = errors.New("engine: worker pool at capacity")
	// ErrSessionKeyTimeout is returned when a worker did not announce a valid
	// session key within the retry budget.
	ErrSessionKeyTimeout = errors.New("engine: session key not announced")
	// ErrUnknownProcess is returned for a pid the supervisor does not track.
	ErrUnknownProcess = errors.New("engine: unknown worker process")
	// ErrSpawnThrottled is returned when workers are being spawned too fast.
	ErrSpawnThrottled = errors.New("engine: worker spawn throttled")
)
