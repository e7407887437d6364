package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the scheduler reloads the list and sweeps.
const DefaultSweepInterval = time.Minute

// Scheduler runs Load (and with it the expiry sweep) on a ticker.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *zerolog.Logger
	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	stopCh   chan struct{}
}

func NewScheduler(manager *Manager, interval time.Duration, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	l := logger.With().Str("component", "sweep_scheduler").Logger()
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   &l,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scheduler loop. It blocks until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("sweep scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweep scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// RunNow forces an immediate load and sweep.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.logger.Debug().Msg("manual sweep triggered")
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	list, err := s.manager.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled booking load failed")
		return
	}

	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	s.logger.Debug().Int("bookings", len(list)).Dur("duration", time.Since(start)).Msg("scheduled sweep done")
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the last successful run started.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
