// internal/schedule/watcher.go
package schedule

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 500 * time.Millisecond

// Source yields the settings in effect.
type Source interface {
	Settings() Settings
}

// SourceFunc adapts a function to a Source.
type SourceFunc func() Settings

func (f SourceFunc) Settings() Settings { return f() }

// Fixed returns a Source that always yields s.
func Fixed(s Settings) Source {
	s = s.Clone()
	return SourceFunc(func() Settings { return s.Clone() })
}

// Watcher holds the current settings and reloads them when the rules file
// changes. A file that fails to load or validate leaves the settings as they were.
type Watcher struct {
	path     string
	logger   *zap.Logger
	Debounce time.Duration

	mu      sync.RWMutex
	current Settings

	listenersMu sync.Mutex
	listeners   []chan<- Settings

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for path starting from initial. Call Start to watch.
func NewWatcher(path string, initial Settings, logger *zap.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		logger:   logger.Named("rules"),
		Debounce: DefaultDebounce,
		current:  initial.Clone(),
	}
}

// Settings returns a copy of the current settings.
func (w *Watcher) Settings() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}

// Set replaces the current settings and notifies listeners.
func (w *Watcher) Set(s Settings) {
	w.mu.Lock()
	w.current = s.Clone()
	w.mu.Unlock()
	w.notify(s)
}

// Subscribe registers ch for settings updates. Sends never block; a full
// channel misses the update.
func (w *Watcher) Subscribe(ch chan<- Settings) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.listeners = append(w.listeners, ch)
}

func (w *Watcher) notify(s Settings) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	for _, ch := range w.listeners {
		select {
		case ch <- s.Clone():
		default:
			w.logger.Warn("Skipped notifying listener (channel full).")
		}
	}
}

// Reload reads the rules file. On error the current settings are kept.
func (w *Watcher) Reload() error {
	s, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.Set(s)
	w.logger.Info("Rules reloaded.",
		zap.Int("day_rules", len(s.DayRules)),
		zap.Int("date_rules", len(s.DateRules)))
	return nil
}

// Start watches the rules file until ctx ends or Close is called. The
// directory is watched so atomic replacements are seen.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cancel != nil {
		return errors.New("rules watcher already started")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch rules directory: %w", err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx, fsw)
	w.logger.Info("Watching rules file.", zap.String("path", w.path))
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Rules watcher stopped.")
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Rules file changed.", zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Error("Automatic rules reload failed, keeping previous rules.", zap.Error(err))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Rules watcher error.", zap.Error(err))
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}
