// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"errors"
	"sync"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
)

// ErrNilCommand is returned when a nil command is posted. It never enters the queue.
var ErrNilCommand = errors.New("command: nil command")

// View is a read-only snapshot of the queue handed to PostIf predicates.
// It is only valid for the duration of the predicate call.
type View interface {
	Exist(kinds []Kind, sessionKey string) bool
	Len() int
}

// Queue is a thread-safe FIFO of pending commands.
//
// The wake callback runs inside the queue lock exactly when the size goes
// from 0 to 1. It must not call back into the queue.
type Queue struct {
	mu    sync.Mutex
	items []*Command
	wake  func()
}

// NewQueue creates an empty queue with an optional wake callback, subject to
// the same rules as SetWake.
func NewQueue(wake func()) *Queue {
	return &Queue{wake: wake}
}

// SetWake replaces the wake callback. The callback runs while the queue lock
// is held and the lock is not reentrant: a callback that posts to, pops from
// or inspects q deadlocks. Hand the wake-up off instead, for example with a
// non-blocking channel send, and touch the queue from another goroutine.
func (q *Queue) SetWake(wake func()) {
	q.mu.Lock()
	q.wake = wake
	q.mu.Unlock()
}

// Post appends cmd to the back of the queue.
func (q *Queue) Post(cmd *Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(cmd, false)
	return nil
}

// PostFront inserts cmd ahead of everything queued. Reserved for control
// commands such as QuitScheduler.
func (q *Queue) PostFront(cmd *Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(cmd, true)
	return nil
}

// PostIf appends cmd only if pred returns true. The predicate runs under the
// queue lock and sees the queue through v, so check and insert are atomic.
func (q *Queue) PostIf(cmd *Command, pred func(v View) bool) (bool, error) {
	if cmd == nil {
		return false, ErrNilCommand
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if pred != nil && !pred(lockedView{q}) {
		return false, nil
	}
	q.insertLocked(cmd, false)
	return true, nil
}

func (q *Queue) insertLocked(cmd *Command, front bool) {
	position := "back"
	if front {
		position = "front"
		q.items = append([]*Command{cmd}, q.items...)
	} else {
		q.items = append(q.items, cmd)
	}
	metrics.QueuePostedTotal.WithLabelValues(cmd.Kind().String(), position).Inc()
	metrics.QueueDepth.Set(float64(len(q.items)))

	if len(q.items) == 1 && q.wake != nil {
		metrics.QueueWakeTotal.Inc()
		q.wake()
	}
}

// Pop removes and returns the front command.
func (q *Queue) Pop() (*Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	metrics.QueueDepth.Set(float64(len(q.items)))
	return cmd, true
}

// Exist reports whether a queued command matches one of kinds and sessionKey.
func (q *Queue) Exist(kinds []Kind, sessionKey string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.existLocked(kinds, sessionKey)
}

func (q *Queue) existLocked(kinds []Kind, sessionKey string) bool {
	for _, cmd := range q.items {
		if cmd.SessionKey() != sessionKey {
			continue
		}
		for _, k := range kinds {
			if cmd.Kind() == k {
				return true
			}
		}
	}
	return false
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every queued command without invoking its reply and
// returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()

	metrics.QueueDepth.Set(0)
	if n > 0 {
		metrics.QueueClearedTotal.Add(float64(n))
		logger := log.WithComponent("queue")
		logger.Debug().Int("discarded", n).Msg("queue cleared")
	}
	return n
}

type lockedView struct{ q *Queue }

func (v lockedView) Exist(kinds []Kind, sessionKey string) bool {
	return v.q.existLocked(kinds, sessionKey)
}

func (v lockedView) Len() int { return len(v.q.items) }
