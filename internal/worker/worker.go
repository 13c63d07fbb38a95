// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrShutDown is returned by Start when Stop was called first. The task never runs.
	ErrShutDown = errors.New("worker: stopped before start")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("worker: already started")
	// ErrNotStarted is returned by Wait on a worker that was never started.
	ErrNotStarted = errors.New("worker: not started")
)

// Func is the task a Worker runs. ctx is cancelled by Stop; w lets the task
// check ShutdownRequested between steps.
type Func func(ctx context.Context, w *Worker) error

// Worker runs one task in its own goroutine and can be asked to stop.
type Worker struct {
	fn     Func
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	started  bool
	err      error
	stopOnce sync.Once
}

// New creates a worker for fn. Nothing runs until Start.
func New(fn Func, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		fn:     fn,
		logger: logger.With(zap.String("component", "worker")),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the task in a new goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	if w.ctx.Err() != nil {
		return ErrShutDown
	}
	w.started = true

	go w.run()
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.cancel()

	err := w.call()

	w.mu.Lock()
	w.err = err
	w.mu.Unlock()

	switch {
	case err == nil:
		w.logger.Debug("Worker finished.")
	case errors.Is(err, context.Canceled) && w.ShutdownRequested():
		w.logger.Debug("Worker stopped.")
	default:
		w.logger.Warn("Worker failed.", zap.Error(err))
	}
}

func (w *Worker) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: task panicked: %v", r)
		}
	}()
	return w.fn(w.ctx, w)
}

// Stop asks the task to finish. It does not wait; use Wait for that.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Debug("Stop requested.")
		w.cancel()
	})
}

// ShutdownRequested reports whether Stop was called, or the task has returned.
func (w *Worker) ShutdownRequested() bool {
	return w.ctx.Err() != nil
}

// Wait blocks until the task returns and yields its error. When ctx ends
// first, ctx's error is returned and the task keeps running.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the task has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Running reports whether the task has started and not yet returned.
func (w *Worker) Running() bool {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}
