// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/playerd/internal/command"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type replyRecord struct {
	res     command.Result
	payload any
}

func recorder() (command.Reply, <-chan replyRecord) {
	ch := make(chan replyRecord, 4)
	return func(res command.Result, payload any) {
		ch <- replyRecord{res: res, payload: payload}
	}, ch
}

func waitReply(t *testing.T, ch <-chan replyRecord) replyRecord {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return replyRecord{}
	}
}

func startScheduler(t *testing.T, h Handler, opts ...Option) (*Scheduler, *command.Queue) {
	t.Helper()
	q := command.NewQueue(nil)
	s := New(q, h, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, q
}

func TestScheduler_PlayAwaitSuccessReturnsToIdle(t *testing.T) {
	entered := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		close(entered)
		n, ok := aw.Await(cmd.SessionKey(), EventStateChanged, FailureDefault)
		if !ok {
			return command.BackendUnreachable, nil
		}
		return command.OK, n.Event
	})
	s, q := startScheduler(t, h)

	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.Play, "A", reply)))

	<-entered
	require.Eventually(t, func() bool { return s.State() == StateAwaiting }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Notify(Notification{Event: EventStateChanged, SessionKey: "A"}))

	r := waitReply(t, replies)
	assert.Equal(t, command.OK, r.res)
	assert.Equal(t, EventStateChanged, r.payload)
	assert.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_NonMatchingEventsKeepWaiting(t *testing.T) {
	entered := make(chan struct{})
	var handled atomic.Int32
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		handled.Add(1)
		close(entered)
		if _, ok := aw.Await("S1", EventCallDone, EventCallFailed); !ok {
			return command.BackendUnreachable, nil
		}
		return command.OK, nil
	})
	s, q := startScheduler(t, h)

	var calls atomic.Int32
	done := make(chan command.Result, 2)
	require.NoError(t, q.Post(command.New(command.Pause, "S1", func(res command.Result, _ any) {
		calls.Add(1)
		done <- res
	})))
	<-entered

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Notify(Notification{Event: EventPosition, SessionKey: "S1"}))
		require.NoError(t, s.Notify(Notification{Event: EventCallFailed, SessionKey: "S2"}))
	}
	select {
	case <-done:
		t.Fatal("handler completed on a non-matching event")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Notify(Notification{Event: EventCallDone, SessionKey: "S1"}))
	select {
	case res := <-done:
		assert.Equal(t, command.OK, res)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never completed")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), handled.Load())
}

func TestScheduler_FailureMaskRepliesFailure(t *testing.T) {
	entered := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		close(entered)
		n, ok := aw.Await(cmd.SessionKey(), EventCallDone, FailureDefault)
		if !ok {
			return command.BackendUnreachable, n.Event
		}
		return command.OK, nil
	})
	s, q := startScheduler(t, h)

	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.Seek, "S1", reply)))
	<-entered
	require.NoError(t, s.Notify(Notification{Event: EventEngineDestroyed, SessionKey: "S1"}))

	r := waitReply(t, replies)
	assert.Equal(t, command.BackendUnreachable, r.res)
	assert.Equal(t, EventEngineDestroyed, r.payload)
}

func TestScheduler_SingleFlightFIFO(t *testing.T) {
	var active, maxActive atomic.Int32
	var mu sync.Mutex
	var order []string

	h := HandlerFunc(func(_ context.Context, _ Awaiter, cmd *command.Command) (command.Result, any) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, cmd.SessionKey())
		mu.Unlock()
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return command.OK, nil
	})
	_, q := startScheduler(t, h)

	const total = 40
	var wg sync.WaitGroup
	wg.Add(total)
	var replies atomic.Int32
	want := make([]string, 0, total)
	for i := 0; i < total; i++ {
		key := string(rune('A' + i%26))
		want = append(want, key)
		require.NoError(t, q.Post(command.New(command.Play, key, func(command.Result, any) {
			replies.Add(1)
			wg.Done()
		})))
	}

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("backlog was not drained")
	}

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, int32(total), replies.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, order)
}

func TestScheduler_AwaitTimeout(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		n, ok := aw.Await(cmd.SessionKey(), EventCallDone, FailureDefault)
		if !ok {
			return command.BackendUnreachable, n.Event
		}
		return command.OK, nil
	})
	_, q := startScheduler(t, h, WithAwaitTimeout(30*time.Millisecond))

	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.SetVolume, "S1", reply)))

	r := waitReply(t, replies)
	assert.Equal(t, command.BackendUnreachable, r.res)
	assert.Equal(t, EventTimeout, r.payload)
}

func TestScheduler_InvokeRunsWhileAwaiting(t *testing.T) {
	entered := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		close(entered)
		_, ok := aw.Await(cmd.SessionKey(), EventAsyncDone, FailureDefault)
		if !ok {
			return command.BackendUnreachable, nil
		}
		return command.OK, nil
	})
	s, q := startScheduler(t, h)

	// Idle
	ran := make(chan State, 1)
	require.NoError(t, s.Invoke(func() { ran <- s.State() }))
	select {
	case st := <-ran:
		assert.Equal(t, StateIdle, st)
	case <-time.After(time.Second):
		t.Fatal("task did not run while idle")
	}

	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.SetPosition, "S1", reply)))
	<-entered
	require.Eventually(t, func() bool { return s.State() == StateAwaiting }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Invoke(func() { ran <- s.State() }))
	select {
	case st := <-ran:
		assert.Equal(t, StateAwaiting, st)
	case <-time.After(time.Second):
		t.Fatal("task did not run while awaiting")
	}

	require.NoError(t, s.Notify(Notification{Event: EventAsyncDone, SessionKey: "S1"}))
	assert.Equal(t, command.OK, waitReply(t, replies).res)
	assert.NoError(t, s.Invoke(nil))
}

func TestScheduler_PanicCompletesWithInternalError(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, _ Awaiter, cmd *command.Command) (command.Result, any) {
		if cmd.Kind() == command.SetRate {
			panic("boom")
		}
		return command.OK, nil
	})
	_, q := startScheduler(t, h)

	r1, c1 := recorder()
	r2, c2 := recorder()
	require.NoError(t, q.Post(command.New(command.SetRate, "S1", r1)))
	require.NoError(t, q.Post(command.New(command.Play, "S1", r2)))

	assert.Equal(t, command.InternalError, waitReply(t, c1).res)
	assert.Equal(t, command.OK, waitReply(t, c2).res)
}

func TestScheduler_HandlerCompletesEarly(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, _ Awaiter, cmd *command.Command) (command.Result, any) {
		cmd.Complete(command.OK, 42)
		return command.InternalError, nil
	})
	_, q := startScheduler(t, h)

	var got any
	require.NoError(t, q.Post(command.New(command.OpenSession, "", func(_ command.Result, payload any) {
		calls.Add(1)
		got = payload
		close(done)
	})))
	<-done
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 42, got)
}

func TestScheduler_PostedBeforeStartIsExecuted(t *testing.T) {
	q := command.NewQueue(nil)
	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.Play, "S1", reply)))

	s := New(q, HandlerFunc(func(context.Context, Awaiter, *command.Command) (command.Result, any) {
		return command.OK, nil
	}))
	defer func() { _ = s.Close(context.Background()) }()

	assert.Equal(t, command.OK, waitReply(t, replies).res)
}

func TestScheduler_CloseDiscardsQueuedWork(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, _ Awaiter, cmd *command.Command) (command.Result, any) {
		if cmd.SessionKey() == "first" {
			close(entered)
			<-release
		}
		return command.OK, nil
	})
	q := command.NewQueue(nil)
	s := New(q, h)

	firstReply, firstCh := recorder()
	var queuedReplies atomic.Int32
	require.NoError(t, q.Post(command.New(command.Play, "first", firstReply)))
	<-entered
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Post(command.New(command.Play, "queued", func(command.Result, any) { queuedReplies.Add(1) })))
	}

	closed := make(chan error, 1)
	go func() { closed <- s.Close(context.Background()) }()

	// QuitScheduler goes ahead of the queued commands.
	require.Eventually(t, func() bool { return q.Len() == 4 }, time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, <-closed)
	assert.Equal(t, command.OK, waitReply(t, firstCh).res)
	assert.Equal(t, int32(0), queuedReplies.Load())
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, s.Notify(Notification{Event: EventCallDone}), ErrClosed)
	assert.ErrorIs(t, s.Invoke(func() {}), ErrClosed)
	assert.NoError(t, s.Close(context.Background()))
}

func TestScheduler_CloseCancelsStuckAwait(t *testing.T) {
	entered := make(chan struct{})
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		close(entered)
		if _, ok := aw.Await(cmd.SessionKey(), EventCallDone, FailureDefault); !ok {
			return command.BackendUnreachable, nil
		}
		return command.OK, nil
	})
	q := command.NewQueue(nil)
	s := New(q, h, WithAwaitTimeout(0))

	reply, replies := recorder()
	require.NoError(t, q.Post(command.New(command.Play, "S1", reply)))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, command.BackendUnreachable, waitReply(t, replies).res)
}

func TestScheduler_IdleEventsAreDropped(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, aw Awaiter, cmd *command.Command) (command.Result, any) {
		return command.OK, nil
	})
	s, _ := startScheduler(t, h)
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Notify(Notification{Event: EventPosition, SessionKey: "S1"}))
	}
	assert.Equal(t, StateIdle, s.State())
}
