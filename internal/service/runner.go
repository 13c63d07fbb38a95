// File: internal/service/runner.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autologin/internal/atoz"
	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/schedule"
	"github.com/xkilldash9x/autologin/internal/store"
)

const recordTimeout = 10 * time.Second

// ErrUnknownService is returned for a service name the runner cannot log into.
var ErrUnknownService = errors.New("unknown service")

// RunRecorder persists login run outcomes.
type RunRecorder interface {
	RecordRun(ctx context.Context, run store.Run) error
}

// LoginOptions tune an AtoZ login.
type LoginOptions struct {
	SaveCookies bool
	// WaitClose leaves the tab open and returns once the user closed the browser window.
	WaitClose bool
}

// Runner performs logins in tabs of a shared browser and records their outcome.
type Runner struct {
	// In and Out are used by the prompt code source.
	In  io.Reader
	Out io.Writer
	// ShowURL receives the Gmail consent URL. Nil prints it to stderr.
	ShowURL func(string)

	cfg      *config.Config
	browser  Browser
	recorder RunRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a runner. recorder may be nil.
func NewRunner(cfg *config.Config, b Browser, recorder RunRecorder, logger *zap.Logger) *Runner {
	return &Runner{
		In:       os.Stdin,
		Out:      os.Stdout,
		cfg:      cfg,
		browser:  b,
		recorder: recorder,
		logger:   logger.Named("runner"),
		now:      time.Now,
	}
}

// LoginAtoZ logs into the AtoZ portal in a new tab.
func (r *Runner) LoginAtoZ(ctx context.Context, opts LoginOptions) (atoz.Result, error) {
	started := r.now()
	result, err := r.loginAtoZ(ctx, opts, started)
	if err != nil {
		r.record(ctx, config.ServiceAtoZ, started, store.OutcomeFailed, err)
		return result, err
	}
	r.record(ctx, config.ServiceAtoZ, started, outcomeOf(result), nil)

	if opts.WaitClose {
		if err := r.browser.WaitForClose(ctx, 0); err != nil {
			return result, fmt.Errorf("wait for browser close: %w", err)
		}
	}
	return result, nil
}

func (r *Runner) loginAtoZ(ctx context.Context, opts LoginOptions, started time.Time) (atoz.Result, error) {
	tab, err := r.browser.OpenTab(ctx)
	if err != nil {
		return atoz.ResultUnknown, fmt.Errorf("failed to open atoz tab: %w", err)
	}
	keepOpen := false
	defer func() {
		if !keepOpen {
			r.closeTab(tab)
		}
	}()

	codes := &lazyCodes{runner: r, since: started}
	defer codes.close()

	client := atoz.NewClient(r.cfg.AtoZ, r.logger)
	result, err := client.Authenticate(ctx, tab, codes, atoz.Options{SaveCookies: opts.SaveCookies})
	if err != nil {
		return atoz.ResultUnknown, err
	}
	keepOpen = opts.WaitClose
	return result, nil
}

// LoginProton logs into ProtonMail in a new tab and closes it again.
func (r *Runner) LoginProton(ctx context.Context) error {
	started := r.now()
	_, closeTab, err := InitializeProtonClient(ctx, r.browser, r.cfg.Proton, r.logger)
	if err != nil {
		r.record(ctx, config.ServiceProton, started, store.OutcomeFailed, err)
		return err
	}
	closeTab()
	r.record(ctx, config.ServiceProton, started, store.OutcomeLoggedIn, nil)
	return nil
}

// Login runs the login of one named service with the configured options.
func (r *Runner) Login(ctx context.Context, service string) error {
	switch service {
	case config.ServiceAtoZ:
		_, err := r.LoginAtoZ(ctx, LoginOptions{SaveCookies: r.cfg.AtoZ.SaveCookies})
		return err
	case config.ServiceProton:
		return r.LoginProton(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
}

// Job returns a scheduler job that logs into every service concurrently.
// A failing service does not cancel the others; all failures are returned joined.
func (r *Runner) Job(services []string) schedule.Job {
	return func(ctx context.Context) error {
		var (
			g    errgroup.Group
			mu   sync.Mutex
			errs []error
		)
		for _, svc := range services {
			g.Go(func() error {
				if err := r.Login(ctx, svc); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", svc, err))
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	}
}

func (r *Runner) closeTab(tab Tab) {
	if err := tab.Close(context.Background()); err != nil {
		r.logger.Debug("Error closing tab.", zap.Error(err))
	}
}

func (r *Runner) record(ctx context.Context, service string, started time.Time, outcome store.Outcome, runErr error) {
	finished := r.now()
	r.logger.Info("Login run finished.",
		zap.String("service", service),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", finished.Sub(started)),
		zap.Error(runErr))

	if r.recorder == nil {
		return
	}
	run := store.Run{
		Service:    service,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	// A canceled run is still recorded.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.recorder.RecordRun(recordCtx, run); err != nil {
		r.logger.Warn("Failed to record login run.", zap.String("service", service), zap.Error(err))
	}
}

func outcomeOf(result atoz.Result) store.Outcome {
	if result == atoz.ResultAlreadyAuthenticated {
		return store.OutcomeAlreadyAuthenticated
	}
	return store.OutcomeLoggedIn
}

// lazyCodes builds the configured code source on the first Code call.
type lazyCodes struct {
	runner  *Runner
	since   time.Time
	cleanup func()
}

func (l *lazyCodes) Code(ctx context.Context) (string, error) {
	provider, cleanup, err := l.runner.codeSource(ctx, l.since)
	if err != nil {
		return "", err
	}
	l.cleanup = cleanup

	if timeout := l.runner.cfg.AtoZ.CodeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return provider.Code(ctx)
}

func (l *lazyCodes) close() {
	if l.cleanup != nil {
		l.cleanup()
	}
}
