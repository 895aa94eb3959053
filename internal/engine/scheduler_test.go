package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestScheduler_PeriodicUpdateFiresOnCadence(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClock()
	fired := make(chan time.Time, 4)

	s := NewScheduler(fc, time.Second, 200*time.Millisecond, Callbacks{
		PeriodicUpdate:  func(now time.Time) { fired <- now },
		RouteTimeout:    func(time.Time) {},
		GarbageCollect:  func(time.Time) {},
		TriggeredUpdate: func(time.Time) {},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	s.Start()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, fc.BlockUntilContext(blockCtx, 1))

	fc.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "periodic update did not fire")
	}

	cancel()
	<-done
}

func TestScheduler_StopPreventsRearm(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClock()
	var count int
	done := make(chan struct{})

	s := NewScheduler(fc, time.Second, 200*time.Millisecond, Callbacks{
		PeriodicUpdate: func(time.Time) {
			count++
			if count == 1 {
				close(done)
			}
		},
		RouteTimeout:    func(time.Time) {},
		GarbageCollect:  func(time.Time) {},
		TriggeredUpdate: func(time.Time) {},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Start()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, fc.BlockUntilContext(blockCtx, 1))

	s.Stop()
	fc.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "periodic update did not fire once")
	}
	require.Equal(t, 1, count, "no further firing should be scheduled once Stop is called")
}

func TestScheduler_TriggeredUpdateFiresAfterDelay(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClock()
	fired := make(chan struct{}, 1)

	s := NewScheduler(fc, time.Hour, 2*time.Second, Callbacks{
		PeriodicUpdate:  func(time.Time) {},
		RouteTimeout:    func(time.Time) {},
		GarbageCollect:  func(time.Time) {},
		TriggeredUpdate: func(time.Time) { fired <- struct{}{} },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Start()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, fc.BlockUntilContext(blockCtx, 1))

	s.ScheduleTriggered()
	fc.Advance(2 * time.Second)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "triggered update did not fire")
	}
}
