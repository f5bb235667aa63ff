package vehicles

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestScheduler(t *testing.T, feed Feed, mutate func(*SchedulerConfig)) (*Scheduler, *clockwork.FakeClock, *Tracker) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	tracker := NewTracker(time.Second)
	cfg := SchedulerConfig{
		Feed:         feed,
		Tracker:      tracker,
		Clock:        clock,
		PollInterval: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, clock, tracker
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func TestSchedulerRefreshesImmediatelyAndOnTick(t *testing.T) {
	var calls atomic.Int32
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		calls.Add(1)
		return NewSnapshot([]Vehicle{{ID: "bus-1", Lon: 18, Lat: 59}}), nil
	})

	s, clock, tracker := newTestScheduler(t, feed, nil)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return s.Status().Completed == 1 && !s.inFlight.Load()
	}, waitFor, time.Millisecond)

	status := s.Status()
	require.True(t, status.Active)
	require.Equal(t, 1, status.Vehicles)
	require.NotNil(t, status.LastSuccess)
	require.Equal(t, clock.Now(), *status.LastSuccess)

	blockUntil(t, clock, 1)
	clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		return s.Status().Completed == 2
	}, waitFor, time.Millisecond)
	require.Equal(t, int32(2), calls.Load())

	_, current := tracker.Generations()
	require.Equal(t, []string{"bus-1"}, current.IDs())
	require.Equal(t, clock.Now(), tracker.Window().Start)

	s.Stop()
	require.False(t, s.Status().Active)
}

func TestSchedulerSkipsTickWhileFetchInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		calls.Add(1)
		select {
		case <-release:
			return NewSnapshot(nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	s, clock, _ := newTestScheduler(t, feed, func(cfg *SchedulerConfig) {
		cfg.FetchTimeout = time.Minute
	})
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, time.Millisecond)

	blockUntil(t, clock, 1)
	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return s.Status().Skipped == 1 }, waitFor, time.Millisecond)
	require.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool { return s.Status().Completed == 1 }, waitFor, time.Millisecond)
}

func TestSchedulerFailureKeepsSnapshots(t *testing.T) {
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		return nil, errors.New("HTTP 503 from http://feed")
	})

	s, _, tracker := newTestScheduler(t, feed, nil)
	before := NewSnapshot([]Vehicle{{ID: "kept"}})
	tracker.Apply(before, time.Unix(0, 0))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Status().Failed == 1 }, waitFor, time.Millisecond)

	status := s.Status()
	require.Equal(t, 0, status.Completed)
	require.Nil(t, status.LastSuccess)
	require.Equal(t, "HTTP 503 from http://feed", status.LastError)

	_, current := tracker.Generations()
	require.Same(t, before, current)
}

func TestSchedulerFetchTimeout(t *testing.T) {
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s, _, _ := newTestScheduler(t, feed, func(cfg *SchedulerConfig) {
		cfg.FetchTimeout = 10 * time.Millisecond
	})
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Status().Failed == 1 }, waitFor, time.Millisecond)
	require.Contains(t, s.Status().LastError, context.DeadlineExceeded.Error())
}

func TestSchedulerStopCancelsFetch(t *testing.T) {
	started := make(chan struct{})
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s, _, _ := newTestScheduler(t, feed, func(cfg *SchedulerConfig) {
		cfg.FetchTimeout = time.Hour
	})
	require.NoError(t, s.Start(context.Background()))
	<-started

	s.Stop()
	status := s.Status()
	require.False(t, status.Active)
	require.Equal(t, 0, status.Failed)
}

func TestSchedulerFrameTask(t *testing.T) {
	var frames atomic.Int32
	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) {
		return NewSnapshot(nil), nil
	})

	s, clock, _ := newTestScheduler(t, feed, func(cfg *SchedulerConfig) {
		cfg.FrameInterval = 100 * time.Millisecond
		cfg.OnFrame = func(time.Time) { frames.Add(1) }
	})
	require.NoError(t, s.Start(context.Background()))

	blockUntil(t, clock, 2)
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return frames.Load() == 1 }, waitFor, time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return frames.Load() == 2 }, waitFor, time.Millisecond)
}

func TestSchedulerLifecycleErrors(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{Tracker: NewTracker(0)})
	require.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{Feed: NewHTTPFeed("http://localhost", nil)})
	require.Error(t, err)

	feed := FeedFunc(func(ctx context.Context) (*Snapshot, error) { return NewSnapshot(nil), nil })
	s, _, _ := newTestScheduler(t, feed, nil)
	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	s.Stop()
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
}
