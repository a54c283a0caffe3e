// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainKeys(q *Queue) []string {
	var keys []string
	for {
		cmd, ok := q.Pop()
		if !ok {
			return keys
		}
		keys = append(keys, cmd.SessionKey())
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Post(New(Play, k, nil)))
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, drainKeys(q)); diff != "" {
		t.Fatalf("pop order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueue_PostFrontPrecedesQueued(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Post(New(Play, "a", nil)))
	require.NoError(t, q.Post(New(Play, "b", nil)))
	require.NoError(t, q.PostFront(New(QuitScheduler, "quit", nil)))
	require.NoError(t, q.Post(New(Play, "c", nil)))

	if diff := cmp.Diff([]string{"quit", "a", "b", "c"}, drainKeys(q)); diff != "" {
		t.Fatalf("pop order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueue_WakeOnlyOnEmptyToNonEmpty(t *testing.T) {
	wakes := 0
	q := NewQueue(func() { wakes++ })

	require.NoError(t, q.Post(New(Play, "a", nil))) // 0 -> 1
	require.NoError(t, q.Post(New(Play, "b", nil))) // 1 -> 2
	assert.Equal(t, 1, wakes)

	_, _ = q.Pop()                                  // 2 -> 1
	require.NoError(t, q.Post(New(Play, "c", nil))) // 1 -> 2
	assert.Equal(t, 1, wakes)

	_, _ = q.Pop()
	_, _ = q.Pop()                                               // 1 -> 0
	require.NoError(t, q.PostFront(New(QuitScheduler, "", nil))) // 0 -> 1
	assert.Equal(t, 2, wakes)

	q.Clear()
	ok, err := q.PostIf(New(Play, "d", nil), func(View) bool { return true }) // 0 -> 1
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, wakes)
}

func TestQueue_WakeRunsUnderLock(t *testing.T) {
	q := NewQueue(nil)
	var observed int
	q.SetWake(func() {
		// Items are already visible to the callback.
		observed = len(q.items)
	})
	require.NoError(t, q.Post(New(Play, "a", nil)))
	assert.Equal(t, 1, observed)
}

func TestQueue_WakeHandsOffToPoster(t *testing.T) {
	woken := make(chan struct{}, 1)
	q := NewQueue(func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-woken
		// Posting from the woken goroutine is safe once the callback returned.
		assert.NoError(t, q.Post(New(Pause, "a", nil)))
	}()

	require.NoError(t, q.Post(New(Play, "a", nil)))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("post after wake-up blocked")
	}
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Exist([]Kind{Pause}, "a"))
}

func TestQueue_ExistDuplicateSuppression(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Post(New(Play, "S1", nil)))

	assert.True(t, q.Exist([]Kind{Play}, "S1"))
	assert.False(t, q.Exist([]Kind{Pause}, "S1"))
	assert.False(t, q.Exist([]Kind{Play}, "S2"))
	assert.True(t, q.Exist([]Kind{Pause, Play}, "S1"))

	_, ok := q.Pop()
	require.True(t, ok)
	assert.False(t, q.Exist([]Kind{Play}, "S1"))
}

func TestQueue_PostIfAtomicCheck(t *testing.T) {
	q := NewQueue(nil)
	notQueued := func(v View) bool { return !v.Exist([]Kind{Play}, "S1") }

	ok, err := q.PostIf(New(Play, "S1", nil), notQueued)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.PostIf(New(Play, "S1", nil), notQueued)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())

	ok, err = q.PostIf(New(Play, "S2", nil), func(v View) bool { return v.Len() < 2 })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_PostIfConcurrentSingleWinner(t *testing.T) {
	q := NewQueue(nil)
	notQueued := func(v View) bool { return !v.Exist([]Kind{Play}, "S1") }

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.PostIf(New(Play, "S1", nil), notQueued)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ClearDoesNotReply(t *testing.T) {
	q := NewQueue(nil)
	replied := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Post(New(Play, "S1", func(Result, any) { replied++ })))
	}

	assert.Equal(t, 3, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, replied)
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Clear())
}

func TestQueue_RejectsNil(t *testing.T) {
	q := NewQueue(nil)
	assert.ErrorIs(t, q.Post(nil), ErrNilCommand)
	assert.ErrorIs(t, q.PostFront(nil), ErrNilCommand)
	_, err := q.PostIf(nil, nil)
	assert.ErrorIs(t, err, ErrNilCommand)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentPostersPreservePerProducerOrder(t *testing.T) {
	q := NewQueue(nil)
	const producers, perProducer = 4, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Post(New(Play, string(rune('a'+p)), nil, WithArgs(i)))
			}
		}(p)
	}
	wg.Wait()

	last := map[string]int{}
	for {
		cmd, ok := q.Pop()
		if !ok {
			break
		}
		seq := cmd.Args().(int)
		if prev, seen := last[cmd.SessionKey()]; seen {
			assert.Greater(t, seq, prev)
		}
		last[cmd.SessionKey()] = seq
	}
	assert.Len(t, last, producers)
}
