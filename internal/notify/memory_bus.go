// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/metrics"
)

// TopicAll receives every change; TopicFor(key) only one session's.
const TopicAll = "session.*"

func TopicFor(sessionKey string) string { return "session." + sessionKey }

const (
	subscriberBuffer = 64
	dropLogEvery     = 100
)

// Subscriber receives changes published to one topic.
type Subscriber interface {
	C() <-chan Change
	Close() error
}

// MemoryBus is an in-process pub/sub of state changes. Publishing never
// blocks: a subscriber that falls behind loses changes.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string][]*memSub
	dropped atomic.Uint64
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

// Notify publishes c to its session topic and to TopicAll.
func (b *MemoryBus) Notify(_ context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.publishLocked(TopicFor(c.SessionKey), c)
	b.publishLocked(TopicAll, c)
	return nil
}

func (b *MemoryBus) publishLocked(topic string, c Change) {
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- c:
		default:
			metrics.IncBusDropReason(topic, "subscriber_full")
			if n := b.dropped.Add(1); n%dropLogEvery == 1 {
				logger := log.WithComponent("notify")
				logger.Warn().
					Str("topic", topic).
					Uint64("dropped", n).
					Msg("memory bus dropped change for slow subscriber")
			}
		}
	}
}

// Subscribe registers a subscriber on topic.
func (b *MemoryBus) Subscribe(topic string) Subscriber {
	s := &memSub{b: b, topic: topic, ch: make(chan Change, subscriberBuffer)}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s
}

// Dropped returns the number of changes lost to slow subscribers.
func (b *MemoryBus) Dropped() uint64 { return b.dropped.Load() }

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Change
	once  sync.Once
}

func (s *memSub) C() <-chan Change { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ Notifier = (*MemoryBus)(nil)
