package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "ricorrenti/internal/log"
)

// RecurringSchedulerConfig holds configuration for the periodic runner
type RecurringSchedulerConfig struct {
	// Interval is how often the batch processor runs (default: 1m)
	Interval time.Duration

	// RunOnStart runs a batch immediately when started (default: true)
	RunOnStart bool
}

// DefaultRecurringSchedulerConfig returns sensible defaults
func DefaultRecurringSchedulerConfig() RecurringSchedulerConfig {
	return RecurringSchedulerConfig{
		Interval:   time.Minute,
		RunOnStart: true,
	}
}

// RecurringScheduler runs the batch processor on a fixed interval. Runs go
// through Trigger, so an overlapping manual run for the same day is shared
// rather than repeated.
type RecurringScheduler struct {
	processor *RecurringProcessor
	clock     Clock
	config    RecurringSchedulerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    *RunSummary
}

func NewRecurringScheduler(processor *RecurringProcessor, clock Clock, config RecurringSchedulerConfig) *RecurringScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultRecurringSchedulerConfig().Interval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RecurringScheduler{
		processor: processor,
		clock:     clock,
		config:    config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring scheduler started", applog.FieldComponent, applog.ComponentScheduler, "interval", s.config.Interval)

	return nil
}

// Stop signals the loop and waits for the in-flight run to finish.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully", applog.FieldComponent, applog.ComponentScheduler)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out", applog.FieldComponent, applog.ComponentScheduler)
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the summary of the most recent completed run, if any.
func (s *RecurringScheduler) LastRun() (RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunSummary{}, false
	}
	return *s.last, true
}

func (s *RecurringScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RecurringScheduler) runOnce(ctx context.Context) {
	now := s.clock.Now()
	summary, err := s.processor.Trigger(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring processing failed", applog.FieldComponent, applog.ComponentScheduler, applog.FieldError, err)
		return
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	slog.InfoContext(ctx, "Periodic processing complete", applog.FieldComponent, applog.ComponentScheduler,
		applog.FieldRunID, summary.RunID,
		applog.FieldProcessed, summary.Processed,
		applog.FieldSkipped, summary.Skipped,
		applog.FieldErrors, summary.Errors,
		"next_check", now.Add(s.config.Interval).Format("15:04:05"))
}
