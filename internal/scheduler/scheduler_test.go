package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minstrelbot/minstrel/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(events Events) *Scheduler {
	return NewScheduler(events, log.New(io.Discard, "", 0))
}

func TestRegisterJob_DoesNotStart(t *testing.T) {
	s := newTestScheduler(Events{})
	var runs atomic.Int32

	require.NoError(t, s.RegisterJob("j1", "counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load(), "registration alone must not run the job")
}

func TestRegisterJob_Validation(t *testing.T) {
	s := newTestScheduler(Events{})
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.RegisterJob("j1", "bad", 0, noop))
	require.NoError(t, s.RegisterJob("j1", "ok", time.Second, noop))
	assert.Error(t, s.RegisterJob("j1", "dup", time.Second, noop))
	assert.Error(t, s.RegisterCronJob("j2", "bad-cron", "not a cron", noop))
	assert.NoError(t, s.RegisterCronJob("j3", "hourly", "0 * * * *", noop))
}

func TestStart_RunsJobPeriodically(t *testing.T) {
	s := newTestScheduler(Events{})
	var runs atomic.Int32

	require.NoError(t, s.RegisterJob("j1", "counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	time.Sleep(110 * time.Millisecond)
	got := runs.Load()
	assert.GreaterOrEqual(t, got, int32(3))
}

func TestDispatch_SkipsOverlappingTicks(t *testing.T) {
	s := newTestScheduler(Events{})
	var mu sync.Mutex
	var startTimes []time.Time

	require.NoError(t, s.RegisterJob("slow", "slow", 50*time.Millisecond, func(ctx context.Context) error {
		mu.Lock()
		startTimes = append(startTimes, time.Now())
		mu.Unlock()
		time.Sleep(120 * time.Millisecond)
		return nil
	}))

	s.Start()
	time.Sleep(400 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, startTimes)
	for i := 1; i < len(startTimes); i++ {
		gap := startTimes[i].Sub(startTimes[i-1])
		assert.GreaterOrEqual(t, gap, 120*time.Millisecond, "run %d overlapped the previous invocation", i)
	}
}

func TestDispatch_DropsTickBufferedDuringRun(t *testing.T) {
	s := newTestScheduler(Events{})
	release := make(chan struct{})
	var runs atomic.Int32

	require.NoError(t, s.RegisterJob("slow", "slow", 100*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			<-release
		}
		return nil
	}))

	s.Start()
	defer s.Stop()

	// The first run blocks across several intervals, leaving one stale
	// tick buffered in the ticker channel.
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(350 * time.Millisecond)
	close(release)

	// The stale tick is dropped, not made up: the second run starts on
	// the next fresh tick, never immediately after the first completes.
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "buffered tick fired immediately after a long run")
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestEvents_StartPrecedesCompletion(t *testing.T) {
	var mu sync.Mutex
	var order []string
	s := newTestScheduler(Events{
		OnStart: func(id, name string) {
			mu.Lock()
			order = append(order, "start")
			mu.Unlock()
		},
		OnComplete: func(id, name string, took time.Duration) {
			mu.Lock()
			order = append(order, "complete")
			mu.Unlock()
		},
		OnError: func(id, name string, err error) {
			mu.Lock()
			order = append(order, "error")
			mu.Unlock()
		},
	})

	fail := false
	require.NoError(t, s.RegisterJob("j1", "flaky", time.Hour, func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}))

	require.NoError(t, s.RunJobNow(context.Background(), "j1"))
	fail = true
	require.NoError(t, s.RunJobNow(context.Background(), "j1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start", "complete", "start", "error"}, order)
}

func TestRunJobNow_BusyAndNotFound(t *testing.T) {
	s := newTestScheduler(Events{})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, s.RegisterJob("j1", "blocker", time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))

	go func() { _ = s.RunJobNow(context.Background(), "j1") }()
	<-started

	err := s.RunJobNow(context.Background(), "j1")
	assert.ErrorIs(t, err, custom_errors.ErrBusy)

	close(release)

	err = s.RunJobNow(context.Background(), "missing")
	assert.ErrorIs(t, err, custom_errors.ErrNotFound)
}

func TestPauseAndResume(t *testing.T) {
	s := newTestScheduler(Events{})
	var runs atomic.Int32

	require.NoError(t, s.RegisterJob("j1", "counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	time.Sleep(70 * time.Millisecond)
	require.NoError(t, s.PauseJob("j1"))
	paused := runs.Load()
	require.Greater(t, paused, int32(0))

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, paused, runs.Load(), "no runs while paused")

	require.NoError(t, s.ResumeJob("j1"))
	time.Sleep(70 * time.Millisecond)
	assert.Greater(t, runs.Load(), paused, "runs resume after ResumeJob")
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(Events{})
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.RegisterJob("j1", "gone", time.Hour, noop))
	require.NoError(t, s.RemoveJob("j1"))
	assert.ErrorIs(t, s.RemoveJob("j1"), custom_errors.ErrNotFound)
	assert.ErrorIs(t, s.RunJobNow(context.Background(), "j1"), custom_errors.ErrNotFound)
	assert.Empty(t, s.Jobs())
}

func TestStop_HaltsTicksButKeepsDefinitions(t *testing.T) {
	s := newTestScheduler(Events{})
	var runs atomic.Int32

	require.NoError(t, s.RegisterJob("j1", "counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	time.Sleep(70 * time.Millisecond)
	s.Stop()
	afterStop := runs.Load()

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, afterStop, runs.Load())
	assert.Equal(t, []string{"j1"}, s.Jobs(), "Stop retains definitions")

	// Out-of-band runs still work after Stop.
	require.NoError(t, s.RunJobNow(context.Background(), "j1"))
	assert.Equal(t, afterStop+1, runs.Load())
}

func TestLastRunAt_Recorded(t *testing.T) {
	s := newTestScheduler(Events{})

	require.NoError(t, s.RegisterJob("j1", "once", time.Hour, func(ctx context.Context) error { return nil }))

	s.mu.Lock()
	job := s.jobs["j1"]
	s.mu.Unlock()
	require.Nil(t, job.LastRunAt())

	require.NoError(t, s.RunJobNow(context.Background(), "j1"))
	assert.NotNil(t, job.LastRunAt())
}

func TestPanicInJobIsContained(t *testing.T) {
	var gotErr error
	s := newTestScheduler(Events{
		OnError: func(id, name string, err error) { gotErr = err },
	})

	require.NoError(t, s.RegisterJob("j1", "panicky", time.Hour, func(ctx context.Context) error {
		panic("kaboom")
	}))

	require.NoError(t, s.RunJobNow(context.Background(), "j1"))
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "kaboom")
}
