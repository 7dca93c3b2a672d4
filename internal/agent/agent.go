// Package agent runs the relay: it brings destinations, the sync engine and
// the sensor up in order, polls the sensor until shutdown and tears
// everything down within bounded waits.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/destination"
	"github.com/GabrielNunesIT/motion-relay/internal/filesync"
	"github.com/GabrielNunesIT/motion-relay/internal/i18n"
	"github.com/GabrielNunesIT/motion-relay/internal/motion"
	"github.com/GabrielNunesIT/motion-relay/internal/sensor"
	"github.com/GabrielNunesIT/motion-relay/internal/telemetry"
)

// Notifier reports service state to the init system.
type Notifier interface {
	Notify(state string) error
	WatchdogEnabled() bool
}

type systemdNotifier struct{}

func (systemdNotifier) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

func (systemdNotifier) WatchdogEnabled() bool {
	d, err := daemon.SdWatchdogEnabled(false)
	return err == nil && d > 0
}

// Option configures an Agent.
type Option func(*Agent)

// WithSensor replaces the sensor built from configuration.
func WithSensor(s sensor.Sensor) Option {
	return func(a *Agent) {
		a.sensor = s
	}
}

// WithRegistry replaces the default destination registry.
func WithRegistry(r *destination.Registry) Option {
	return func(a *Agent) {
		a.registry = r
	}
}

// WithNotifier replaces the systemd notifier.
func WithNotifier(n Notifier) Option {
	return func(a *Agent) {
		a.notifier = n
	}
}

// WithNow sets the clock used for detection times and the quiet window.
func WithNow(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// WithVersion sets the version reported to telemetry.
func WithVersion(v string) Option {
	return func(a *Agent) {
		a.version = v
	}
}

// WithReloads applies every config received on ch while running.
func WithReloads(ch <-chan *config.Config) Option {
	return func(a *Agent) {
		a.reloads = ch
	}
}

// Agent coordinates the relay components.
type Agent struct {
	cfg      *config.Config
	logger   logger.ILogger
	registry *destination.Registry
	sensor   sensor.Sensor
	notifier Notifier
	catalog  *i18n.Catalog
	metrics  *telemetry.Metrics
	monitor  *motion.Monitor
	now      func() time.Time
	version  string
	reloads  <-chan *config.Config

	// mu guards engine and the reloadable parts of cfg. active is written
	// once during startup and only read afterwards.
	mu     sync.Mutex
	engine *filesync.Engine
	active []*destination.Destination

	engineOK bool
	watchdog bool

	// runCtx is the main run context
	runCtx context.Context
}

// New creates an agent. The sensor is built from cfg.Sensor when enabled,
// unless WithSensor supplies one.
func New(cfg *config.Config, log logger.ILogger, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		logger:   log.SubLogger("Agent"),
		notifier: systemdNotifier{},
		metrics:  telemetry.Global(),
		now:      time.Now,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.registry == nil {
		a.registry = destination.NewRegistry(log,
			destination.WithDestinationOptions(destination.WithMetrics(a.metrics)))
	}
	if a.sensor == nil && cfg.Sensor.Enabled {
		a.sensor = sensor.FromConfig(cfg.Sensor, cfg.Sync.LocalFolder, log)
	}

	a.catalog = i18n.New(cfg.Messages, log)
	a.monitor = motion.NewMonitor(
		motion.OnDetected(a.onMotionDetected),
		motion.OnEnded(a.onMotionEnded),
		motion.WithNow(a.now),
	)
	return a
}

// Active returns the destinations that passed init and start.
func (a *Agent) Active() []*destination.Destination {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*destination.Destination, len(a.active))
	copy(out, a.active)
	return out
}

// Run starts the relay and blocks until ctx is cancelled or a tick fails.
// Shutdown always runs before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	a.runCtx = ctx

	tel, err := telemetry.Initialize(ctx, a.cfg.Telemetry, a.version, a.logger)
	if err != nil {
		a.logger.Warningf("telemetry unavailable: %v", err)
	}

	a.startup(ctx)

	if a.sensor == nil && len(a.active) == 0 && !a.engineOK {
		a.logger.Warning("not starting loop: no sensors, no destinations, no file sync")
	} else {
		a.notify(daemon.SdNotifyReady)

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.loop(gCtx)
		})
		if a.reloads != nil {
			g.Go(func() error {
				return a.watchReloads(gCtx)
			})
		}
		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	a.shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if tErr := tel.Shutdown(shutdownCtx); tErr != nil {
		a.logger.Warningf("telemetry shutdown: %v", tErr)
	}

	return err
}

// Reconfigure applies the sync rules and settle interval of cfg. Other
// settings take effect on restart.
func (a *Agent) Reconfigure(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg.Sync.Whitelist = cfg.Sync.Whitelist
	a.cfg.Sync.Blacklist = cfg.Sync.Blacklist
	a.cfg.Sync.VideoSuffix = cfg.Sync.VideoSuffix
	a.cfg.Sleep.SyncDone = cfg.Sleep.SyncDone

	if a.engine != nil {
		a.engine.Reconfigure(filesync.RulesFromConfig(a.cfg.Sync), a.cfg.Sleep.SyncDone)
	}
	a.logger.Info("configuration applied")
}

func (a *Agent) startup(ctx context.Context) {
	a.logger.Info("starting up")

	var active []*destination.Destination
	for _, d := range a.registry.Load(a.cfg.Destinations) {
		if err := d.Init(ctx); err != nil {
			a.logger.Errorf("destination init failed: name=%s, error=%v", d.Name(), err)
			continue
		}
		if err := d.Start(ctx); err != nil {
			a.logger.Errorf("destination start failed: name=%s, error=%v", d.Name(), err)
			if cErr := d.Cleanup(); cErr != nil {
				a.logger.Warningf("destination cleanup failed: name=%s, error=%v", d.Name(), cErr)
			}
			continue
		}
		active = append(active, d)
	}

	if len(active) == 0 {
		a.logger.Info("no active destinations")
	}
	for _, d := range active {
		a.logger.Infof("active destination: name=%s, caps=%+v", d.Name(), d.Capabilities())
	}

	senders := make([]filesync.Sender, len(active))
	for i, d := range active {
		senders[i] = d
	}

	a.mu.Lock()
	a.active = active
	a.engine = filesync.New(a.cfg.Sync.LocalFolder, filesync.RulesFromConfig(a.cfg.Sync), a.cfg.Sleep.SyncDone,
		senders, a.logger, filesync.WithMetrics(a.metrics))
	engine := a.engine
	a.mu.Unlock()

	a.broadcast(ctx, i18n.Started, a.now(), true)

	if err := engine.Init(); err != nil {
		a.logger.Errorf("file sync init failed: %v", err)
	} else {
		a.engineOK = true
		if a.cfg.Sync.InitialCleanup {
			a.logger.Info("cleaning up local folder")
			engine.Sync(ctx, true)
		}
	}

	if a.sensor != nil {
		if err := a.startSensor(ctx); err != nil {
			a.logger.Errorf("sensor unavailable: %v", err)
			a.sensor = nil
		}
	} else {
		a.logger.Info("no sensors")
	}

	a.watchdog = a.notifier.WatchdogEnabled()
}

func (a *Agent) startSensor(ctx context.Context) error {
	if err := a.sensor.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.sensor.Warmup(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	if err := a.sensor.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

func (a *Agent) loop(ctx context.Context) error {
	a.logger.Infof("loop started: interval=%v", a.cfg.Sleep.MainLoop)

	ticker := time.NewTicker(a.cfg.Sleep.MainLoop)
	defer ticker.Stop()

	for {
		if err := a.tick(ctx); err != nil {
			a.logger.Errorf("tick failed, stopping loop: %v", err)
			return err
		}
		if a.watchdog {
			a.notify(daemon.SdNotifyWatchdog)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in tick: %v", r)
		}
	}()

	if a.sensor == nil {
		return nil
	}
	if a.monitor.InQuietWindow(a.now(), a.cfg.Sleep.CheckSensors) {
		return nil
	}

	level, err := a.sensor.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading sensor: %w", err)
	}
	a.monitor.Observe(level)
	return nil
}

func (a *Agent) watchReloads(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-a.reloads:
			if !ok {
				return nil
			}
			a.Reconfigure(cfg)
		}
	}
}

func (a *Agent) onMotionDetected(at time.Time) {
	ctx := a.runCtx
	a.metrics.RecordMotion(ctx, "detected")
	a.logger.Infof("motion detected: at=%s, quiet=%v", at.Format(time.RFC3339), a.cfg.Sleep.CheckSensors)

	if a.sensor != nil && !a.sensor.Capture(ctx, a.onCaptured) {
		a.logger.Debug("capture already running")
	}

	a.broadcast(ctx, i18n.MotionDetected, at, false)
}

func (a *Agent) onMotionEnded(at time.Time) {
	a.metrics.RecordMotion(a.runCtx, "ended")
	a.logger.Debugf("motion ended: at=%s", at.Format(time.RFC3339))
}

func (a *Agent) onCaptured(r sensor.CaptureResult) {
	if r.Err != nil {
		a.logger.Warningf("capture incomplete: folder=%s, files=%d, error=%v", r.Folder, len(r.Files), r.Err)
	}

	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()

	if !engine.Sync(a.runCtx, false) {
		a.logger.Infof("sync not started: folder=%s", r.Folder)
	}
}

func (a *Agent) broadcast(ctx context.Context, key string, at time.Time, force bool) {
	n := a.catalog.Notice(key, at)
	for _, d := range a.active {
		sent, err := d.SendMessage(ctx, n.Message, n.Subject, force)
		switch {
		case err != nil:
			a.logger.Warningf("message failed: destination=%s, key=%s, error=%v", d.Name(), key, err)
		case !sent:
			a.logger.Infof("message not sent: destination=%s, key=%s", d.Name(), key)
		}
	}
}

func (a *Agent) shutdown() {
	a.logger.Info("shutting down")
	a.notify(daemon.SdNotifyStopping)

	ctx := context.WithoutCancel(a.runCtx)
	a.broadcast(ctx, i18n.Stopped, a.now(), true)

	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()

	engine.Cleanup()
	if a.sensor != nil {
		if err := a.sensor.Cleanup(); err != nil {
			a.logger.Warningf("sensor cleanup failed: %v", err)
		}
	}

	a.logger.Info("waiting for destinations to finish")
	if waitUntil(a.cfg.MaxWait.SenderTasks, a.cfg.Sleep.SenderFinished, a.destinationsFinished) {
		a.logger.Info("all destinations finished")
	} else {
		a.logger.Warning("not all destinations finished, forcing stop")
	}

	a.logger.Info("waiting for file sync to finish")
	if engine.WaitIdle(a.cfg.MaxWait.FileSyncTasks, a.cfg.Sleep.FileSyncFinished) {
		a.logger.Info("file sync finished")
	} else {
		a.logger.Warning("file sync did not finish, forcing stop")
	}

	for _, d := range a.active {
		if err := d.Stop(); err != nil {
			a.logger.Warningf("destination stop failed: name=%s, error=%v", d.Name(), err)
		}
		if err := d.Cleanup(); err != nil {
			a.logger.Warningf("destination cleanup failed: name=%s, error=%v", d.Name(), err)
		}
	}

	a.logger.Info("shutdown complete")
}

func (a *Agent) destinationsFinished() bool {
	done := true
	for _, d := range a.active {
		if !d.IsFinished() {
			a.logger.Debugf("destination busy: name=%s, outstanding=%d", d.Name(), d.Outstanding())
			done = false
		}
	}
	return done
}

func (a *Agent) notify(state string) {
	if err := a.notifier.Notify(state); err != nil {
		a.logger.Debugf("sd_notify failed: state=%s, error=%v", state, err)
	}
}

// waitUntil polls cond every poll until it holds or limit elapses.
func waitUntil(limit, poll time.Duration, cond func() bool) bool {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	deadline := time.Now().Add(limit)
	for !cond() {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(poll)
	}
	return true
}
