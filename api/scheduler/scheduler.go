package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher re-fetches the conversation directory
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler keeps the conversation directory fresh in the background
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	schedule  string
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler instance. schedule is any expression
// accepted by cron, e.g. "@every 30s".
func NewScheduler(refresher Refresher, schedule string, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
	}
}

// Start registers the refresh job and begins the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RefreshDirectory); err != nil {
		return errors.Wrapf(err, "failed to register directory refresh job %q", s.schedule)
	}
	s.cron.Start()
	zap.S().Infow("directory refresh scheduler started", "schedule", s.schedule)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("directory refresh scheduler stopped")
}

// RefreshDirectory runs one refresh. Overlapping runs are skipped.
func (s *Scheduler) RefreshDirectory() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		zap.S().Debug("directory refresh already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.refresher.Refresh(ctx); err != nil {
		zap.S().Warnw("failed to refresh conversation directory", "error", err)
	}
}
