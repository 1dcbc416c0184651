package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is implemented by components that swap in a new configuration
// snapshot at runtime. Snapshots are never mutated after they are handed out.
type Reloadable interface {
	// OnConfigReload is called with the new snapshot. An error keeps the
	// subscriber on its previous snapshot; the reloader logs it and
	// continues notifying other subscribers.
	OnConfigReload(newCfg *Config) error
}

// Reloader watches the config file and SIGHUP and coordinates reloads.
type Reloader struct {
	configPath  string
	currentCfg  atomic.Pointer[Config]
	subscribers []Reloadable
	logger      *slog.Logger
	debounce    time.Duration
	// prepare adjusts a freshly loaded config before it is validated again
	// (e.g. CLI listen overrides).
	prepare func(*Config)
	// onResult observes the outcome of every reload that produced a change
	// or failed.
	onResult func(cfg *Config, err error)

	mu      sync.RWMutex
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	stopped chan struct{}
	sigChan chan os.Signal
}

// NewReloader creates a Reloader for the given config file path.
// The initialCfg is set as the current config atomically.
func NewReloader(configPath string, initialCfg *Config, logger *slog.Logger) *Reloader {
	r := &Reloader{
		configPath: configPath,
		logger:     logger,
		debounce:   initialCfg.Reload.Debounce.Duration,
		stopped:    make(chan struct{}),
	}
	r.currentCfg.Store(initialCfg)
	return r
}

// SetPrepare installs a hook applied to each reloaded config before validation.
// Must be called before Start.
func (r *Reloader) SetPrepare(fn func(*Config)) {
	r.prepare = fn
}

// SetResultHook installs fn to observe reload outcomes: err is non-nil for a
// rejected file, otherwise cfg is the newly active snapshot. Reloads that
// detect no change are not reported. Must be called before Start.
func (r *Reloader) SetResultHook(fn func(cfg *Config, err error)) {
	r.onResult = fn
}

// Register adds a component to receive reload notifications.
// Must be called before Start.
func (r *Reloader) Register(sub Reloadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// Current returns the current active configuration. Safe for concurrent use.
func (r *Reloader) Current() *Config {
	return r.currentCfg.Load()
}

// Start begins watching for SIGHUP and file changes. It returns once the
// watchers are installed; Stop ends them.
func (r *Reloader) Start(ctx context.Context) error {
	r.sigChan = make(chan os.Signal, 1)
	signal.Notify(r.sigChan, syscall.SIGHUP)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		signal.Stop(r.sigChan)
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(r.configPath); err != nil {
		watcher.Close()
		signal.Stop(r.sigChan)
		return fmt.Errorf("watching config file %q: %w", r.configPath, err)
	}
	r.watcher = watcher
	r.logger.Info("config file watcher started", "path", r.configPath, "debounce", r.debounce)

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return nil
}

// Stop shuts down the reloader. It is a no-op if Start was never called.
func (r *Reloader) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.stopped
}

// Reload reads the config file, validates it, logs the diff, and notifies
// subscribers. An invalid file leaves the current config in place.
func (r *Reloader) Reload() error {
	r.logger.Info("config reload triggered", "path", r.configPath)

	newCfg, err := r.load()
	if err != nil {
		r.logger.Error("config reload failed: invalid config, keeping current",
			"error", err,
			"path", r.configPath,
		)
		if r.onResult != nil {
			r.onResult(nil, err)
		}
		return fmt.Errorf("config reload: %w", err)
	}

	oldCfg := r.currentCfg.Load()
	changes := Diff(oldCfg, newCfg)

	if len(changes) == 0 {
		r.logger.Info("config reload: no changes detected")
		return nil
	}

	for _, c := range changes {
		if c.Reloadable {
			r.logger.Info("config change detected",
				"field", c.Field,
				"old", fmt.Sprintf("%v", c.OldValue),
				"new", fmt.Sprintf("%v", c.NewValue),
			)
		} else {
			r.logger.Warn("config change requires restart (ignored)",
				"field", c.Field,
				"old", fmt.Sprintf("%v", c.OldValue),
				"new", fmt.Sprintf("%v", c.NewValue),
			)
		}
	}

	r.currentCfg.Store(newCfg)

	r.mu.RLock()
	subs := make([]Reloadable, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.OnConfigReload(newCfg); err != nil {
			r.logger.Error("subscriber reload failed",
				"error", err,
				"subscriber", fmt.Sprintf("%T", sub),
			)
		}
	}

	if r.onResult != nil {
		r.onResult(newCfg, nil)
	}

	r.logger.Info("config reloaded",
		"changes", len(changes),
		"routes", len(newCfg.Routes),
		"path", r.configPath,
	)
	return nil
}

func (r *Reloader) load() (*Config, error) {
	cfg, err := Load(r.configPath)
	if err != nil {
		return nil, err
	}
	if r.prepare != nil {
		r.prepare(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// run is the main loop that listens for SIGHUP and file change events.
func (r *Reloader) run(ctx context.Context) {
	defer close(r.stopped)
	defer signal.Stop(r.sigChan)
	defer r.watcher.Close()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case sig := <-r.sigChan:
			r.logger.Info("received signal, reloading config", "signal", sig)
			if err := r.Reload(); err != nil {
				r.logger.Error("SIGHUP reload failed", "error", err)
			}

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			// Editors often replace the file (rename/create) instead of writing in place.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(r.debounce)
				debounceCh = debounceTimer.C
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			debounceTimer = nil
			r.logger.Info("config file changed, reloading", "path", r.configPath)
			// The file may have been temporarily removed.
			_ = r.watcher.Add(r.configPath)
			if err := r.Reload(); err != nil {
				r.logger.Error("file watch reload failed", "error", err)
			}
		}
	}
}
