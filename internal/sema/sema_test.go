// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNotifyBeforeWait(t *testing.T) {
	s := New(0)
	s.Notify()
	s.Notify()
	assert.Equal(t, 2, s.Value())
	require.NoError(t, s.Wait(context.Background()))
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, 0, s.Value())
	assert.False(t, s.TryWait())
}

func TestWaitBlocksUntilNotify(t *testing.T) {
	s := New(0)
	done := make(chan struct{})
	go func() {
		_ = s.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned without a count")
	case <-time.After(50 * time.Millisecond):
	}

	s.Notify()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Notify")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, s.Value())
}

func TestEachNotifyReleasesOneWaiter(t *testing.T) {
	s := New(0)
	const waiters = 8
	var released atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Wait(context.Background()) == nil {
				released.Add(1)
			}
		}()
	}

	for i := 0; i < waiters; i++ {
		s.Notify()
	}
	wg.Wait()
	assert.Equal(t, int32(waiters), released.Load())
	assert.Equal(t, 0, s.Value())
}

func TestNegativeInitialClamped(t *testing.T) {
	assert.Equal(t, 0, New(-3).Value())
	assert.True(t, New(1).TryWait())
}
