// Package sensor provides the motion sensor and camera collaborator: level
// reads from a GPIO pin and command driven capture sessions.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// Lifecycle errors.
var (
	ErrNotInitialized = errors.New("sensor not initialized")
	ErrNotWarmedUp    = errors.New("sensor not warmed up")
	ErrNotStarted     = errors.New("sensor not started")
)

// CaptureResult describes one finished capture session.
type CaptureResult struct {
	Folder string
	Files  []string
	Err    error
}

// Sensor is the collaborator the relay drives once per tick.
type Sensor interface {
	Init(ctx context.Context) error
	Warmup(ctx context.Context) error
	Start(ctx context.Context) error

	// Read returns the current level.
	Read(ctx context.Context) (model.Level, error)

	// Capture starts a capture session in the background and calls onDone
	// when it finishes. It reports false when a session is already running.
	Capture(ctx context.Context, onDone func(CaptureResult)) bool

	Cleanup() error
}

// LevelReader reads the motion signal.
type LevelReader interface {
	Open() error
	Read() (model.Level, error)
	Close() error
}

// Camera records one capture session into folder and returns the files it
// wrote.
type Camera interface {
	Capture(ctx context.Context, folder string) ([]string, error)
}

// Device composes a level reader and a camera. Captures are written to
// <root>/<prefix>-<session>/.
type Device struct {
	reader    LevelReader
	camera    Camera
	root      string
	prefix    string
	initDelay time.Duration
	warmup    time.Duration
	now       func() time.Time
	log       logger.ILogger

	mu          sync.Mutex
	initialized bool
	warmedUp    bool
	started     bool

	capturing atomic.Bool
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithNow sets the clock used for session folder names.
func WithNow(now func() time.Time) DeviceOption {
	return func(d *Device) {
		d.now = now
	}
}

// NewDevice creates a device writing captures under root.
func NewDevice(reader LevelReader, camera Camera, root, prefix string, initDelay, warmup time.Duration, log logger.ILogger, opts ...DeviceOption) *Device {
	if prefix == "" {
		prefix = "rs"
	}
	d := &Device{
		reader:    reader,
		camera:    camera,
		root:      root,
		prefix:    prefix,
		initDelay: initDelay,
		warmup:    warmup,
		now:       time.Now,
		log:       log.SubLogger("Sensor"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromConfig builds a device from configuration: a scripted reader when a
// script is set, the GPIO value file otherwise, and the command camera.
func FromConfig(cfg config.SensorConfig, root string, log logger.ILogger) *Device {
	var reader LevelReader
	if len(cfg.Script) > 0 {
		levels := make([]model.Level, len(cfg.Script))
		for i, v := range cfg.Script {
			if v != 0 {
				levels[i] = model.High
			}
		}
		reader = NewScriptedReader(levels...)
	} else {
		reader = NewGPIOReader(cfg.GPIOValuePath)
	}

	camera := NewCommandCamera(cfg.Camera, log)
	return NewDevice(reader, camera, root, cfg.Camera.FilePrefix, cfg.InitDelay, cfg.Warmup, log)
}

// Init waits the init delay and opens the reader.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		d.log.Debug("already initialized")
		return nil
	}

	d.log.Infof("initializing: delay=%v", d.initDelay)
	if err := wait(ctx, d.initDelay); err != nil {
		return err
	}
	if err := d.reader.Open(); err != nil {
		return fmt.Errorf("opening sensor: %w", err)
	}
	d.initialized = true
	return nil
}

// Warmup blocks for the warmup interval so the sensor settles.
func (d *Device) Warmup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}
	if d.warmedUp {
		return nil
	}

	d.log.Infof("warming up: duration=%v", d.warmup)
	if err := wait(ctx, d.warmup); err != nil {
		return err
	}
	d.warmedUp = true
	return nil
}

// Start enables reads.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.initialized:
		return ErrNotInitialized
	case !d.warmedUp:
		return ErrNotWarmedUp
	}

	d.log.Info("starting")
	d.started = true
	return nil
}

// Read returns the current level.
func (d *Device) Read(ctx context.Context) (model.Level, error) {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	if !started {
		return model.Low, ErrNotStarted
	}
	return d.reader.Read()
}

// Capture records a session in the background. The session is not tied to
// ctx cancellation.
func (d *Device) Capture(ctx context.Context, onDone func(CaptureResult)) bool {
	if !d.capturing.CompareAndSwap(false, true) {
		d.log.Debug("capture already in progress")
		return false
	}

	folder := filepath.Join(d.root, d.prefix+"-"+model.SessionName(d.now()))
	ctx = context.WithoutCancel(ctx)

	go func() {
		d.log.Infof("capture started: folder=%s", folder)
		files, err := d.camera.Capture(ctx, folder)
		if err != nil {
			d.log.Errorf("capture failed: folder=%s, error=%v", folder, err)
		} else {
			d.log.Infof("capture done: folder=%s, files=%d", folder, len(files))
		}

		d.capturing.Store(false)
		if onDone != nil {
			onDone(CaptureResult{Folder: folder, Files: files, Err: err})
		}
	}()
	return true
}

// Capturing reports whether a capture session is running.
func (d *Device) Capturing() bool {
	return d.capturing.Load()
}

// Cleanup closes the reader and resets the lifecycle.
func (d *Device) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	d.log.Info("cleaning up")
	d.initialized, d.warmedUp, d.started = false, false, false
	return d.reader.Close()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
