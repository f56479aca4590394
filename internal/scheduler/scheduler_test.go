package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/internal/logging"
	"github.com/jdziat/newsdesk/pkg/schedule"
)

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var once sync.Once
	t.Cleanup(func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Error("scheduler did not stop")
			}
		})
	})
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s := New(logging.Discard(), Trigger{
		Name:     "tick",
		Schedule: schedule.Every(10 * time.Millisecond),
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RunOnStart(t *testing.T) {
	var runs atomic.Int32
	s := New(logging.Discard(), Trigger{
		Name:       "boot",
		Schedule:   schedule.Every(time.Hour),
		RunOnStart: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_TriggerNeverOverlapsItself(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	s := New(logging.Discard(), Trigger{
		Name:     "slow",
		Schedule: schedule.Every(time.Millisecond),
		Run: func(context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			runs.Add(1)
			return nil
		},
	})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, maxActive.Load())
}

func TestScheduler_FailingTriggerKeepsRunning(t *testing.T) {
	var runs atomic.Int32
	s := New(logging.Discard(), Trigger{
		Name:     "broken",
		Schedule: schedule.Every(10 * time.Millisecond),
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunNow(t *testing.T) {
	want := errors.New("feed down")
	s := New(logging.Discard(), Trigger{Name: "fetch", Run: func(context.Context) error { return want }})

	assert.ErrorIs(t, s.RunNow(context.Background(), "fetch"), want)
	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownTrigger)
}

func TestRunNow_RejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(logging.Discard(), Trigger{Name: "report", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "report") }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), "report"), ErrTriggerRunning)
	close(release)
	assert.NoError(t, <-done)
}

func TestNames(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := New(nil,
		Trigger{Name: TriggerReport, Run: noop},
		Trigger{Name: TriggerCleanup, Run: noop},
		Trigger{Name: TriggerFetch, Run: noop},
	)
	assert.Equal(t, []string{"cleanup", "fetch", "report"}, s.Names())
}
