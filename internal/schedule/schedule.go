// Package schedule runs a job on a cron schedule without letting two runs overlap.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// Job is one scheduled pass.
type Job func(ctx context.Context) error

// Scheduler triggers a Job from a standard five field cron expression.
//
// Activations that fire while a previous run is still going join that run
// instead of starting a second one.
type Scheduler struct {
	expr    string
	job     Job
	cron    *cron.Cron
	group   singleflight.Group
	mu      sync.Mutex
	running bool
	logger  *slog.Logger
}

// New validates expr and returns a stopped Scheduler.
func New(expr string, job Job) (*Scheduler, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return &Scheduler{
		expr:   expr,
		job:    job,
		cron:   cron.New(),
		logger: slog.Default().With("component", "schedule"),
	}, nil
}

// Start registers the job and starts the cron runner. The scheduler stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.expr, func() {
		if err := s.Trigger(ctx); err != nil {
			s.logger.Error("Scheduled run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "schedule", s.expr)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Trigger runs the job now. It returns the result of the run it joined
// when one is already in progress.
func (s *Scheduler) Trigger(ctx context.Context) error {
	_, err, shared := s.group.Do("run", func() (any, error) {
		s.logger.Info("Starting scheduled run")
		return nil, s.job(ctx)
	})
	if shared {
		s.logger.Debug("Joined a run already in progress")
	}
	return err
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next activation time, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
