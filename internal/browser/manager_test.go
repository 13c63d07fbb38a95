// internal/browser/manager_test.go
package browser

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autologin/internal/config"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})

		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.Equal(t, true, flags["headless"])
		assert.NotContains(t, flags, "ignore-certificate-errors")
		if runtime.GOOS == "linux" {
			assert.Equal(t, true, flags["no-sandbox"])
		}
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["hide-scrollbars"])
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Equal(t, true, flags["ignore-certificate-errors"])
		assert.Equal(t, true, flags["allow-insecure-localhost"])
	})

	t.Run("CustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--window-size=1280,800", "--incognito", "--", "lang=de"},
		})
		assert.Equal(t, "1280,800", flags["window-size"])
		assert.Equal(t, true, flags["incognito"])
		assert.Equal(t, "de", flags["lang"])
		assert.NotContains(t, flags, "")
	})

	t.Run("CustomArgsOverrideDefaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Args: []string{"--disable-gpu=false"}})
		assert.Equal(t, "false", flags["disable-gpu"])
	})
}

func TestBuildAllocatorOptions(t *testing.T) {
	base := len(buildAllocatorOptions(config.BrowserConfig{}))
	withPaths := len(buildAllocatorOptions(config.BrowserConfig{BinaryPath: "/usr/bin/brave", UserDataDir: t.TempDir()}))
	assert.Equal(t, base+2, withPaths)
}

// chromeBinary finds a browser for the integration tests or skips the test.
func chromeBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	if bin := os.Getenv("AUTOLOGIN_TEST_CHROME"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "brave-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome/Chromium binary found")
	return ""
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	bin := chromeBinary(t)

	cfg := config.NewDefaultConfig()
	cfg.Browser.BinaryPath = bin
	cfg.Browser.Headless = true
	cfg.Browser.UserDataDir = t.TempDir()
	cfg.Browser.ElementTimeout = 5 * time.Second
	cfg.Browser.URLTimeout = 5 * time.Second
	cfg.Browser.PollInterval = 50 * time.Millisecond
	cfg.Network.NavigationTimeout = 20 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m, err := NewManager(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		assert.NoError(t, m.Shutdown(shutdownCtx))
	})
	return m
}

func TestManager_SessionLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s1, err := m.NewSession(ctx)
	require.NoError(t, err)
	s2, err := m.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())

	open, err := m.openSessionTargets()
	require.NoError(t, err)
	assert.Equal(t, 2, open)

	require.NoError(t, s1.Close(ctx))
	require.NoError(t, s1.Close(ctx), "close must be idempotent")

	_, err = s1.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)

	require.NoError(t, s2.Close(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, m.WaitForClose(waitCtx, 50*time.Millisecond))
}

func TestManager_ShutdownClosesSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, err := m.NewSession(ctx)
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	assert.True(t, s.closed())
	_, err = m.NewSession(ctx)
	assert.ErrorIs(t, err, ErrBrowserClosed)
}
