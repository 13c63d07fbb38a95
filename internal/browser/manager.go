// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
)

const (
	defaultStartupTimeout = 30 * time.Second
	defaultCloseInterval  = 500 * time.Millisecond
)

// Manager owns the browser process. Every Session is a tab inside it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the browser process, browserCtx holds the
	// connection to it. Tabs are derived from browserCtx.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}

	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...",
		zap.String("binary", m.cfg.Browser.BinaryPath),
		zap.Bool("headless", m.cfg.Browser.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(m.cfg.Browser)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	startup := m.cfg.Browser.StartupTimeout
	if startup <= 0 {
		startup = defaultStartupTimeout
	}

	// The first Run on browserCtx starts the process. It must not run on a
	// derived context: canceling that would take the browser down with it.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(browserCtx, chromedp.Navigate("about:blank")) }()

	timer := time.NewTimer(startup)
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("browser failed to start or respond: %w", err)
		}
	case <-timer.C:
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser did not respond within %s", startup)
	}

	m.allocatorCtx, m.allocatorCancel = allocCtx, allocCancel
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the exec allocator options from the browser config.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BinaryPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// allocatorFlags returns the command line flags layered over chromedp's defaults.
// A false value removes a default flag.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// Drops the "enable-automation" default and hides navigator.webdriver.
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"headless":               cfg.Headless,
		"hide-scrollbars":        cfg.Headless,
		"mute-audio":             cfg.Headless,
		"disable-gpu":            cfg.Headless,
	}

	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	// Custom arguments, "--name=value" or "--name". They win over the above.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if flagName == "" {
			continue
		}
		if len(parts) == 2 {
			flags[flagName] = parts[1]
		} else {
			flags[flagName] = true
		}
	}

	return flags
}

// NewSession opens a new tab.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if m.browserCtx == nil || m.browserCtx.Err() != nil {
		return nil, ErrBrowserClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	// Run with no actions creates and attaches the target.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	if err := ctx.Err(); err != nil {
		tabCancel()
		return nil, err
	}
	if tasks := personaTasks(m.cfg.Browser.Persona, m.logger); len(tasks) > 0 {
		if err := chromedp.Run(tabCtx, tasks); err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to apply browser persona: %w", err)
		}
	}

	id := uuid.NewString()
	s := newSession(tabCtx, tabCancel, id, m.cfg, m.logger)

	m.wg.Add(1)
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", id))
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", id))
	return s, nil
}

// WaitForClose blocks until every tab opened by the manager has been closed
// by the user, the browser exits, or ctx is done.
func (m *Manager) WaitForClose(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultCloseInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Waiting for the browser window to be closed.")
	for {
		open, err := m.openSessionTargets()
		if err != nil {
			// The browser went away, which is what we were waiting for.
			m.logger.Debug("Browser target listing failed, treating as closed.", zap.Error(err))
			return nil
		}
		if open == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.browserCtx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// openSessionTargets counts the tracked tabs that are still present in the browser.
func (m *Manager) openSessionTargets() (int, error) {
	infos, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			present[string(info.TargetID)] = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, s := range m.sessions {
		if present[s.targetID()] {
			open++
		}
	}
	return open, nil
}

// Shutdown closes all sessions, waits for them until ctx is done, then
// terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	m.mu.Lock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.Unlock()

	for _, s := range sessionsToClose {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
