package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLoader replaces Load, for tests.
func WithLoader(load func(string) (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		w.load = load
	}
}

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// Watcher reloads a config file when it changes. The parent folder is
// watched so editors that replace the file by rename are seen too. Only the
// newest valid config is kept for the consumer; older unread ones are
// replaced.
type Watcher struct {
	path     string
	load     func(string) (*Config, error)
	debounce time.Duration
	log      logger.ILogger

	updates  chan *Config
	last     atomic.Pointer[Config]
	failures atomic.Int64
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, log logger.ILogger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		load:     Load,
		debounce: 100 * time.Millisecond,
		log:      log.SubLogger("ConfigWatcher"),
		updates:  make(chan *Config, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Updates delivers reloaded configs.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Last returns the most recent valid config, or nil before the first reload.
func (w *Watcher) Last() *Config {
	return w.last.Load()
}

// Failures returns how many reloads were rejected.
func (w *Watcher) Failures() int64 {
	return w.failures.Load()
}

// Start registers the watch and runs the event loop until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	w.log.Debugf("watching config: path=%s", w.path)
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	quiet := time.NewTimer(time.Hour)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("config watcher stopped")
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debugf("config change: op=%s", ev.Op)
			quiet.Reset(w.debounce)

		case <-quiet.C:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.failures.Add(1)
			w.log.Errorf("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.failures.Add(1)
		w.log.Errorf("config rejected, keeping current: %v", err)
		return
	}
	w.last.Store(cfg)
	w.log.Infof("config reloaded: path=%s", w.path)

	// Replace an unread update so the consumer sees the newest one.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
}
