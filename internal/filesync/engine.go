// Package filesync treats a local folder as an outbound queue for captured
// media: files are filtered, fanned out to every destination and deleted once
// at least one destination accepted them.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/GabrielNunesIT/motion-relay/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidRoot is returned by Init for roots that must never be synced.
var ErrInvalidRoot = errors.New("invalid sync root")

// Sender is the part of a destination the engine uses.
type Sender interface {
	Name() string
	SendImage(ctx context.Context, asset model.CapturedAsset) error
	SendVideo(ctx context.Context, asset model.CapturedAsset) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep sets the function used for the settle interval.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithNow sets the clock used for session timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets the pass id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithMetrics records pass and file counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs sync passes over a root folder. At most one pass runs at a
// time; concurrent Sync calls are turned away.
type Engine struct {
	root    string
	senders []Sender
	log     logger.ILogger

	sem  *semaphore.Weighted
	busy atomic.Bool

	mu          sync.RWMutex
	rules       Rules
	settle      time.Duration
	initialized bool
	last        *model.SyncRun

	sleep   func(time.Duration)
	now     func() time.Time
	newID   func() string
	metrics *telemetry.Metrics
}

// New creates an engine over root that fans out to senders in order.
// settle is the pause between the upload walk and deletion.
func New(root string, rules Rules, settle time.Duration, senders []Sender, log logger.ILogger, opts ...Option) *Engine {
	e := &Engine{
		root:    root,
		senders: senders,
		log:     log.SubLogger("FileSync"),
		sem:     semaphore.NewWeighted(1),
		rules:   rules,
		settle:  settle,
		sleep:   time.Sleep,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Root returns the sync root.
func (e *Engine) Root() string {
	return e.root
}

// Init validates the root and creates it if missing. It is idempotent.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initialized = false
	if e.root == "" || filepath.Clean(e.root) == "/" {
		return fmt.Errorf("%w: %q", ErrInvalidRoot, e.root)
	}

	e.log.Infof("local folder: path=%s", e.root)
	info, err := os.Stat(e.root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(e.root, 0o755); err != nil {
			return fmt.Errorf("creating sync root: %w", err)
		}
	case err != nil:
		return fmt.Errorf("checking sync root: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, e.root)
	}

	e.initialized = true
	return nil
}

// Reconfigure swaps the filter rules and settle interval. A running pass
// keeps the rules it started with.
func (e *Engine) Reconfigure(rules Rules, settle time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.settle = settle
	e.log.Info("rules reconfigured")
}

// Busy reports whether a pass is running.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// WaitIdle polls Busy every poll until it clears or limit elapses. It reports
// whether the engine went idle.
func (e *Engine) WaitIdle(limit, poll time.Duration) bool {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	deadline := time.Now().Add(limit)
	for e.Busy() {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(poll)
	}
	return true
}

// LastRun returns the result of the most recently finished upload pass.
func (e *Engine) LastRun() *model.SyncRun {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Cleanup releases engine resources. The engine holds none beyond the
// running pass, which is left to finish.
func (e *Engine) Cleanup() {
	e.log.Debug("cleanup")
}

// Sync starts a pass in the background and reports whether it started. With
// cleanup set the pass deletes everything under the root except the keep
// paths and their ancestors; otherwise it uploads and deletes delivered files.
// The pass outlives ctx cancellation.
func (e *Engine) Sync(ctx context.Context, cleanup bool, keep ...string) bool {
	e.mu.RLock()
	initialized, rules, settle := e.initialized, e.rules, e.settle
	e.mu.RUnlock()

	if !initialized {
		e.log.Error("sync requested before init")
		return false
	}
	if len(e.senders) == 0 {
		e.log.Info("no active destinations, skipping sync")
		return false
	}
	if !e.sem.TryAcquire(1) {
		e.log.Info("sync already in progress")
		return false
	}
	e.busy.Store(true)

	id := e.newID()
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer func() {
			e.busy.Store(false)
			e.sem.Release(1)
		}()

		ctx, span := telemetry.Tracer().Start(ctx, "filesync.pass", trace.WithAttributes(
			attribute.String("sync.id", id),
			attribute.Bool("sync.cleanup", cleanup),
		))
		defer span.End()

		e.metrics.RecordPass(ctx, cleanup)
		log := e.log
		start := time.Now()

		if cleanup {
			log.Infof("cleanup pass started: id=%s", id)
			if err := e.clean(ctx, log, keep); err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			log.Infof("cleanup pass done: id=%s, elapsed=%v", id, time.Since(start))
			return
		}

		log.Infof("upload pass started: id=%s", id)
		run, err := e.upload(ctx, log, id, rules, settle)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("sync.delivered", len(run.Delivered())))

		e.mu.Lock()
		e.last = run
		e.mu.Unlock()
		log.Infof("upload pass done: id=%s, delivered=%d, elapsed=%v", id, len(run.Delivered()), time.Since(start))
	}()

	return true
}

// upload walks the root, dispatches retained files, then deletes every file
// at least one sender accepted.
func (e *Engine) upload(ctx context.Context, log logger.ILogger, id string, rules Rules, settle time.Duration) (*model.SyncRun, error) {
	run := model.NewSyncRun(id, e.now())
	filtered := 0

	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == e.root {
				return err
			}
			log.Warningf("skipping unreadable path: path=%s, error=%v", p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == e.root {
			return nil
		}

		if d.IsDir() {
			if !rules.descend(d.Name()) {
				log.Debugf("folder skipped: path=%s", p)
				return fs.SkipDir
			}
			return nil
		}

		if !rules.keepFile(d.Name()) {
			log.Debugf("deleting file without upload: path=%s", p)
			if err := os.Remove(p); err != nil {
				log.Errorf("delete failed: path=%s, error=%v", p, err)
			}
			filtered++
			return nil
		}

		e.dispatch(ctx, log, run, p, e.subfolder(p, run.Session), rules.VideoSuffix)
		return nil
	})
	if err != nil {
		log.Errorf("walk failed: root=%s, error=%v", e.root, err)
	}

	e.metrics.RecordFiles(ctx, telemetry.OutcomeFiltered, filtered)
	e.reportFailures(log, run)

	// Pause so a backend still finishing its own write does not race the
	// deletion. This narrows the window, it does not close it.
	e.sleep(settle)

	delivered := run.Delivered()
	deleted := 0
	for _, p := range delivered {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Errorf("delete failed: path=%s, error=%v", p, err)
			continue
		}
		deleted++
	}
	e.metrics.RecordFiles(ctx, telemetry.OutcomeDeleted, deleted)

	retained := 0
	for _, files := range run.Failed {
		for _, p := range files {
			if !run.Succeeded(p) {
				retained++
			}
		}
	}
	e.metrics.RecordFiles(ctx, telemetry.OutcomeRetained, retained)

	return run, err
}

// dispatch sends one file to every sender in order and records the outcome.
func (e *Engine) dispatch(ctx context.Context, log logger.ILogger, run *model.SyncRun, p, subfolder, videoSuffix string) {
	asset := model.NewCapturedAsset(p, subfolder, videoSuffix)
	start := time.Now()

	for _, s := range e.senders {
		var err error
		if asset.Kind == model.KindVideo {
			err = s.SendVideo(ctx, asset)
		} else {
			err = s.SendImage(ctx, asset)
		}

		if err != nil {
			log.Warningf("send failed: destination=%s, path=%s, error=%v", s.Name(), p, err)
			run.RecordFailure(s.Name(), p)
			continue
		}
		log.Debugf("sent: destination=%s, path=%s", s.Name(), p)
		run.RecordSuccess(p)
	}

	log.Infof("file dispatched: path=%s, subfolder=%s, elapsed=%v", p, subfolder, time.Since(start))
}

func (e *Engine) reportFailures(log logger.ILogger, run *model.SyncRun) {
	if len(run.Failed) == 0 {
		return
	}

	names := make([]string, 0, len(run.Failed))
	for name := range run.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, p := range run.Failed[name] {
			log.Warningf("not delivered: destination=%s, path=%s", name, p)
		}
	}
}

// subfolder builds the remote folder of p from its folder below the root and
// the pass session.
func (e *Engine) subfolder(p, session string) string {
	rel, err := filepath.Rel(e.root, filepath.Dir(p))
	if err != nil || rel == "." {
		rel = ""
	}
	return path.Join(filepath.ToSlash(rel), session)
}

// clean deletes every entry under the root except the keep paths and the
// folders leading to them.
func (e *Engine) clean(ctx context.Context, log logger.ILogger, keep []string) error {
	kept := make(map[string]struct{}, len(keep))
	ancestors := make(map[string]struct{})
	root := filepath.Clean(e.root)
	for _, k := range keep {
		k = filepath.Clean(k)
		kept[k] = struct{}{}
		for dir := filepath.Dir(k); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
			ancestors[dir] = struct{}{}
		}
	}

	removed := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			log.Warningf("skipping unreadable path: path=%s, error=%v", p, err)
			return nil
		}
		if p == root {
			return nil
		}

		if _, ok := kept[p]; ok {
			log.Debugf("keeping: path=%s", p)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := ancestors[p]; ok {
			return nil
		}

		log.Debugf("deleting: path=%s", p)
		if err := os.RemoveAll(p); err != nil {
			log.Errorf("delete failed: path=%s, error=%v", p, err)
		} else {
			removed++
		}
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		log.Errorf("cleanup walk failed: root=%s, error=%v", root, err)
	}

	e.metrics.RecordFiles(ctx, telemetry.OutcomeDeleted, removed)
	return err
}
