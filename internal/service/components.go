// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/atoz"
	"github.com/xkilldash9x/autologin/internal/browser"
	"github.com/xkilldash9x/autologin/internal/observability"
	"github.com/xkilldash9x/autologin/internal/proton"
	"github.com/xkilldash9x/autologin/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Tab is a browser tab both login clients can drive.
type Tab interface {
	atoz.Page
	proton.Page
	Close(ctx context.Context) error
}

// Browser opens tabs in a running browser.
type Browser interface {
	OpenTab(ctx context.Context) (Tab, error)
	WaitForClose(ctx context.Context, interval time.Duration) error
	Shutdown(ctx context.Context) error
}

// managerBrowser exposes a browser.Manager as a Browser.
type managerBrowser struct {
	*browser.Manager
}

func (b managerBrowser) OpenTab(ctx context.Context) (Tab, error) {
	s, err := b.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Components holds the long lived dependencies of a login run.
type Components struct {
	Browser Browser
	// Store is nil when no database is configured.
	Store *store.Store

	closeDB func()
}

// Recorder returns the run recorder, or nil when history is disabled.
func (c *Components) Recorder() RunRecorder {
	if c.Store == nil {
		return nil
	}
	return c.Store
}

// Shutdown closes the browser, then the database pool.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Browser != nil {
		// The caller's context may already be canceled at this point.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser shut down.")
		}
	}

	if c.closeDB != nil {
		c.closeDB()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
