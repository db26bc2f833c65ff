// Package scheduler runs the cron-driven fallback resync that reconciles
// the list view when push notifications may have been missed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrStopped is returned by Trigger after Stop.
var ErrStopped = errors.New("scheduler is stopped")

// ErrBusy is returned by Trigger while a resync is already running.
var ErrBusy = errors.New("resync already running")

// TriggerFunc is the callback invoked when a resync should run.
type TriggerFunc func(ctx context.Context) error

// Status describes the schedule and the outcome of the last run.
type Status struct {
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns a single cron entry.
type Scheduler struct {
	cron    *cron.Cron
	trigger TriggerFunc
	logger  *slog.Logger

	mu       sync.RWMutex
	entry    cron.EntryID
	schedule string
	running  bool
	lastRun  time.Time
	lastErr  error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running triggers
	stopped bool
}

// New creates a Scheduler with no schedule.
func New(trigger TriggerFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		trigger: trigger,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Validate checks a cron expression without scheduling anything. The
// empty expression is valid and disables the schedule.
func Validate(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Set replaces the schedule. An empty expression removes it. On error the
// previous schedule is kept.
func (s *Scheduler) Set(expr string) error {
	if err := Validate(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.schedule = expr
	if expr == "" {
		s.logger.Info("resync schedule disabled")
		return nil
	}

	id, err := s.cron.AddFunc(expr, func() {
		if s.begin() {
			s.run()
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entry = id
	s.logger.Info("scheduled resync", "schedule", expr, "next_run", s.cron.Entry(id).Next)
	return nil
}

// Start begins executing the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Trigger runs a resync now, outside the schedule.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrBusy
	}
	s.running = true
	s.wg.Add(1)
	go s.run()
	return nil
}

// begin marks a scheduled run as started. Overlapping runs are skipped.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.running {
		s.logger.Debug("resync skipped, previous run still active")
		return false
	}
	s.running = true
	s.wg.Add(1)
	return true
}

// run executes the trigger. The caller must have set running and called
// wg.Add(1).
func (s *Scheduler) run() {
	defer s.wg.Done()

	start := time.Now()
	err := s.trigger(s.ctx)

	s.mu.Lock()
	s.running = false
	s.lastErr = err
	if err == nil {
		s.lastRun = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("resync failed", "duration", time.Since(start), "err", err)
		return
	}
	s.logger.Debug("resync completed", "duration", time.Since(start))
}

// Stop stops the schedule, cancels a running trigger and waits for it to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current schedule state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Schedule: s.schedule,
		Running:  s.running,
		LastRun:  s.lastRun,
	}
	if s.entry != 0 {
		st.NextRun = s.cron.Entry(s.entry).Next
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
