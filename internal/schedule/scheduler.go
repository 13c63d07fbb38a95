// internal/schedule/scheduler.go
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/worker"
)

// DefaultInterval is used when Interval is not positive.
const DefaultInterval = 15 * time.Minute

// ErrBusy is returned when a start is requested while a run is waiting or running.
var ErrBusy = errors.New("schedule: a run is already active")

// State is what the scheduler is doing.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is one login pass.
type Job func(ctx context.Context) error

// RunReport describes one Job invocation.
type RunReport struct {
	Started  time.Time
	Finished time.Time
	Err      error
}

// Scheduler repeats Job every Interval while the rules allow it.
type Scheduler struct {
	Job      Job
	Source   Source
	Interval time.Duration
	// OnRun, when set, is called after every Job invocation.
	OnRun func(RunReport)

	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   State
	current *worker.Worker
	wakeAt  time.Time
}

// New creates an idle scheduler.
func New(job Job, source Source, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Job:      job,
		Source:   source,
		Interval: interval,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextWake returns when a waiting scheduler will start running.
func (s *Scheduler) NextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakeAt, s.state == StateWaiting
}

// RunNow starts running immediately.
func (s *Scheduler) RunNow() error {
	return s.start(time.Time{})
}

// DelayedStart starts running at the next TimeToStart after now.
func (s *Scheduler) DelayedStart(now time.Time) error {
	at, err := s.Source.Settings().NextStart(now)
	if err != nil {
		return fmt.Errorf("delayed start: %w", err)
	}
	return s.start(at)
}

func (s *Scheduler) start(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Running() {
		return ErrBusy
	}

	w := worker.New(func(ctx context.Context, w *worker.Worker) error {
		defer s.finished(w)
		return s.loop(ctx, w, at)
	}, s.logger)
	s.current = w
	if at.IsZero() {
		s.state = StateRunning
		s.logger.Info("Starting now.")
	} else {
		s.state = StateWaiting
		s.wakeAt = at
		s.logger.Info("Delayed start scheduled.", zap.Time("at", at))
	}
	if err := w.Start(); err != nil {
		s.current, s.state = nil, StateIdle
		return err
	}
	return nil
}

func (s *Scheduler) finished(w *worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == w {
		s.state = StateIdle
		s.wakeAt = time.Time{}
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Stop ends the active run, if any. It does not wait; see Wait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	w := s.current
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Wait blocks until the active run ends or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	w := s.current
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	if err := w.Wait(ctx); err != nil && !errors.Is(err, worker.ErrNotStarted) {
		return err
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, w *worker.Worker, at time.Time) error {
	if !at.IsZero() {
		if !sleep(ctx, at.Sub(s.now())) {
			return nil
		}
		s.setState(StateRunning)
		s.logger.Info("Delayed start reached.")
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	begun := s.now()
	for !w.ShutdownRequested() {
		settings := s.Source.Settings()
		now := s.now()
		if deadline, ok := settings.Deadline(begun); ok && !now.Before(deadline) {
			s.logger.Info("Hours to run elapsed, stopping.", zap.Time("deadline", deadline))
			return nil
		}

		if settings.ActiveAt(now) {
			s.runJob(ctx)
		} else {
			s.logger.Debug("Outside of the allowed window, skipping.")
		}

		if !sleep(ctx, interval) {
			return nil
		}
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context) {
	report := RunReport{Started: s.now()}
	report.Err = s.Job(ctx)
	report.Finished = s.now()

	if report.Err != nil && ctx.Err() == nil {
		s.logger.Warn("Run failed.", zap.Error(report.Err), zap.Duration("took", report.Finished.Sub(report.Started)))
	} else if report.Err == nil {
		s.logger.Info("Run finished.", zap.Duration("took", report.Finished.Sub(report.Started)))
	}
	if s.OnRun != nil {
		s.OnRun(report)
	}
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
