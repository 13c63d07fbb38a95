// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/gmail"
	"github.com/xkilldash9x/autologin/internal/proton"
	"github.com/xkilldash9x/autologin/internal/store"
	"github.com/xkilldash9x/autologin/internal/verification"
)

// InitializeStore connects the run history database. It returns a nil store
// and no error when no database is configured.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if !cfg.Enabled() {
		logger.Debug("No database configured, run history disabled.")
		return nil, nil, nil
	}

	st, closeDB, err := store.Connect(ctx, cfg.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize run history store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}
	logger.Debug("Run history store initialized.")
	return st, closeDB, nil
}

// InitializeGmailClient creates a Gmail client and runs the OAuth flow if needed.
func InitializeGmailClient(ctx context.Context, cfg config.GmailConfig, logger *zap.Logger, showURL func(string)) (*gmail.Client, error) {
	client := gmail.NewClient(cfg, logger)
	opts := gmail.AuthOptions{SaveToken: cfg.SaveToken, ShowURL: showURL}
	if err := client.Authenticate(ctx, opts); err != nil {
		return nil, fmt.Errorf("failed to authenticate with gmail: %w", err)
	}
	return client, nil
}

// InitializeProtonClient opens a tab and logs into ProtonMail in it. The
// returned func closes the tab.
func InitializeProtonClient(ctx context.Context, b Browser, cfg config.ProtonConfig, logger *zap.Logger) (*proton.Client, func(), error) {
	tab, err := b.OpenTab(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open proton tab: %w", err)
	}
	closeTab := func() {
		if err := tab.Close(context.Background()); err != nil {
			logger.Debug("Error closing proton tab.", zap.Error(err))
		}
	}

	client := proton.NewClient(cfg, tab, logger)
	if err := client.Login(ctx); err != nil {
		closeTab()
		return nil, nil, fmt.Errorf("failed to log into proton: %w", err)
	}
	return client, closeTab, nil
}

// codeSource builds the verification code provider picked by atoz.code_source.
// Mail based sources only consider messages received after since.
func (r *Runner) codeSource(ctx context.Context, since time.Time) (verification.Provider, func(), error) {
	cfg := r.cfg.AtoZ
	switch cfg.CodeSource {
	case config.CodeSourceGmail:
		client, err := InitializeGmailClient(ctx, r.cfg.Gmail, r.logger, r.ShowURL)
		if err != nil {
			return nil, nil, err
		}
		return verification.NewMailProvider(verification.Gmail(client), cfg.CodeSender, since, r.logger), func() {}, nil

	case config.CodeSourceProton:
		client, closeTab, err := InitializeProtonClient(ctx, r.browser, r.cfg.Proton, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return verification.NewMailProvider(verification.Proton(client), cfg.CodeSender, since, r.logger), closeTab, nil

	default:
		return &verification.PromptProvider{In: r.In, Out: r.Out}, func() {}, nil
	}
}
