package vehicles

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is the refresh period of the vehicle feed.
const DefaultPollInterval = 5 * time.Second

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Status summarises the refresh task.
type Status struct {
	Active      bool       `json:"active"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Vehicles    int        `json:"vehicles"`
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Feed    Feed
	Tracker *Tracker
	Clock   clockwork.Clock

	PollInterval time.Duration
	// FetchTimeout bounds a single fetch. Zero uses PollInterval.
	FetchTimeout time.Duration

	// OnFrame runs every FrameInterval while the scheduler is active.
	OnFrame       func(now time.Time)
	FrameInterval time.Duration

	Logger *slog.Logger
}

// Scheduler runs the snapshot refresh task and an optional frame task.
// At most one fetch is in flight; ticks that fire during a fetch are skipped.
type Scheduler struct {
	cfg      SchedulerConfig
	inFlight atomic.Bool

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates cfg and fills defaults.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Feed == nil {
		return nil, errors.New("scheduler requires a feed")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("scheduler requires a tracker")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = cfg.PollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg}, nil
}

// Start refreshes immediately and then on every poll interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status.Active = true

	s.wg.Add(1)
	go s.pollLoop(ctx)

	if s.cfg.OnFrame != nil && s.cfg.FrameInterval > 0 {
		s.wg.Add(1)
		go s.frameLoop(ctx)
	}

	s.cfg.Logger.Info("vehicle polling started",
		"interval", s.cfg.PollInterval,
		"fetch_timeout", s.cfg.FetchTimeout,
	)
	return nil
}

// Stop cancels both tasks and waits for them, including a running fetch.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.cancel = nil
	s.status.Active = false
	s.mu.Unlock()
	s.cfg.Logger.Info("vehicle polling stopped")
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status.LastSuccess != nil {
		ts := *status.LastSuccess
		status.LastSuccess = &ts
	}
	return status
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) frameLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.cfg.Clock.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			s.cfg.OnFrame(now)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		s.cfg.Logger.Debug("vehicle refresh skipped, fetch still in flight")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.refresh(ctx)
	}()
}

func (s *Scheduler) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := s.cfg.Clock.Now()
	snapshot, err := s.cfg.Feed.Fetch(fetchCtx)
	if ctx.Err() != nil {
		return
	}
	now := s.cfg.Clock.Now()

	if err != nil {
		s.mu.Lock()
		s.status.Failed++
		s.status.LastError = err.Error()
		s.mu.Unlock()
		s.cfg.Logger.Warn("vehicle refresh failed", "error", err)
		return
	}

	s.cfg.Tracker.Apply(snapshot, now)

	s.mu.Lock()
	s.status.Completed++
	s.status.LastSuccess = &now
	s.status.LastError = ""
	s.status.Vehicles = snapshot.Len()
	s.mu.Unlock()

	s.cfg.Logger.Debug("vehicle snapshot applied",
		"vehicles", snapshot.Len(),
		"discarded", snapshot.Discarded(),
		"duration_ms", now.Sub(start).Milliseconds(),
	)
}
