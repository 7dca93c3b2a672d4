// Package destination wraps transports in a uniform lifecycle and send
// policy so the relay can treat every backend the same way.
package destination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/GabrielNunesIT/motion-relay/internal/telemetry"
	"github.com/GabrielNunesIT/motion-relay/internal/transport"
)

// Lifecycle errors.
var (
	ErrNotInitialized = errors.New("destination not initialized")
	ErrNotStarted     = errors.New("destination not started")
	ErrNotStopped     = errors.New("destination not stopped")
	ErrCleanedUp      = errors.New("destination already cleaned up")
)

// Clock abstracts time for rate limiting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Destination.
type Option func(*Destination)

// WithClock sets the clock used for message rate limiting.
func WithClock(c Clock) Option {
	return func(d *Destination) {
		d.clock = c
	}
}

// WithAsyncMessages dispatches message sends to background goroutines
// tracked by the outstanding counter.
func WithAsyncMessages() Option {
	return func(d *Destination) {
		d.async = true
	}
}

// WithMetrics records send outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Destination) {
		d.metrics = m
	}
}

// Destination drives one transport through the lifecycle
// Uninitialized -> Initialized -> Started -> Stopped -> CleanedUp and gates
// every send by capability, state and message interval.
type Destination struct {
	transport transport.Transport
	caps      model.Capabilities
	interval  time.Duration
	prefix    string
	async     bool
	clock     Clock
	metrics   *telemetry.Metrics
	log       logger.ILogger

	mu       sync.Mutex
	state    model.DestinationState
	lastSent time.Time

	outstanding atomic.Int64
}

// New wraps t with the capabilities and send policy from p.
func New(t transport.Transport, p config.Policy, log logger.ILogger, opts ...Option) *Destination {
	d := &Destination{
		transport: t,
		caps: model.Capabilities{
			SendMessages: p.SendMessages,
			SendImages:   p.SendImages,
			SendVideos:   p.SendVideos,
		},
		interval: p.MessageInterval,
		prefix:   p.Prefix,
		clock:    systemClock{},
		log:      log.SubLogger(t.Name()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the stable destination name.
func (d *Destination) Name() string {
	return d.transport.Name()
}

// Capabilities returns the fixed send capabilities.
func (d *Destination) Capabilities() model.Capabilities {
	return d.caps
}

// State returns the current lifecycle state.
func (d *Destination) State() model.DestinationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastSent returns when the last message send was attempted.
func (d *Destination) LastSent() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSent
}

// Init establishes the backend client. It is a no-op when already
// initialized or started; on failure the state is unchanged.
func (d *Destination) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case model.StateInitialized, model.StateStarted:
		d.log.Debug("already initialized")
		return nil
	}

	d.log.Info("initializing")
	if err := d.transport.Open(ctx); err != nil {
		return fmt.Errorf("%s: init: %w", d.Name(), err)
	}
	d.state = model.StateInitialized
	return nil
}

// Start performs the backend handshake. It requires Init and is a no-op
// when already started; on failure the state is unchanged.
func (d *Destination) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case model.StateStarted:
		d.log.Debug("already started")
		return nil
	case model.StateInitialized:
	default:
		return fmt.Errorf("%s: start: %w", d.Name(), ErrNotInitialized)
	}

	d.log.Info("starting")
	if err := d.transport.Handshake(ctx); err != nil {
		return fmt.Errorf("%s: start: %w", d.Name(), err)
	}
	d.state = model.StateStarted
	return nil
}

// Stop releases transient connections. It requires Start.
func (d *Destination) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case model.StateStarted:
	case model.StateCleanedUp:
		return fmt.Errorf("%s: stop: %w", d.Name(), ErrCleanedUp)
	default:
		return fmt.Errorf("%s: stop: %w", d.Name(), ErrNotStarted)
	}

	d.log.Info("stopping")
	d.state = model.StateStopped
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("%s: stop: %w", d.Name(), err)
	}
	return nil
}

// Cleanup clears credentials. It requires the destination to be stopped (or
// never started) and is a no-op when already cleaned up.
func (d *Destination) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case model.StateCleanedUp:
		d.log.Debug("already cleaned up")
		return nil
	case model.StateStarted:
		return fmt.Errorf("%s: cleanup: %w", d.Name(), ErrNotStopped)
	case model.StateUninitialized:
		return fmt.Errorf("%s: cleanup: %w", d.Name(), ErrNotInitialized)
	}

	d.log.Info("cleaning up")
	d.transport.Wipe()
	d.state = model.StateCleanedUp
	return nil
}

// IsFinished reports whether no background send is outstanding.
func (d *Destination) IsFinished() bool {
	return d.outstanding.Load() <= 0
}

// Outstanding returns the number of background sends in flight.
func (d *Destination) Outstanding() int64 {
	return d.outstanding.Load()
}

// SendMessage sends a notification. It reports false without error when the
// interval since the last message has not elapsed and force is unset. When
// messages are not a capability it reports true without contacting the
// backend.
func (d *Destination) SendMessage(ctx context.Context, body, subject string, force bool) (bool, error) {
	if !d.caps.SendMessages {
		return true, nil
	}

	d.mu.Lock()
	if d.state != model.StateStarted {
		d.mu.Unlock()
		return false, fmt.Errorf("%s: send message: %w", d.Name(), ErrNotStarted)
	}

	now := d.clock.Now()
	if !force && !d.lastSent.IsZero() && now.Sub(d.lastSent) <= d.interval {
		d.mu.Unlock()
		d.log.Debugf("message skipped: interval=%v, since_last=%v", d.interval, now.Sub(d.lastSent))
		d.metrics.RecordSend(ctx, d.Name(), "message", telemetry.OutcomeSkipped)
		return false, nil
	}

	// The slot is taken at attempt time, even if the send then fails. Forced
	// sends leave it alone.
	if !force && now.After(d.lastSent) {
		d.lastSent = now
	}
	d.mu.Unlock()

	if d.async {
		d.dispatch(ctx, d.prefix+body, d.prefix+subject)
		return true, nil
	}

	if err := d.transport.SendText(ctx, d.prefix+body, d.prefix+subject); err != nil {
		d.metrics.RecordSend(ctx, d.Name(), "message", telemetry.OutcomeFailed)
		return false, fmt.Errorf("%s: send message: %w", d.Name(), err)
	}

	d.metrics.RecordSend(ctx, d.Name(), "message", telemetry.OutcomeSent)
	return true, nil
}

// dispatch runs one message send in the background. The send is detached
// from ctx cancellation so shutdown notices still go out.
func (d *Destination) dispatch(ctx context.Context, body, subject string) {
	d.outstanding.Add(1)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer d.outstanding.Add(-1)

		if err := d.transport.SendText(ctx, body, subject); err != nil {
			d.log.Errorf("background send failed: %v", err)
			d.metrics.RecordSend(ctx, d.Name(), "message", telemetry.OutcomeFailed)
			return
		}
		d.metrics.RecordSend(ctx, d.Name(), "message", telemetry.OutcomeSent)
	}()
}

// SendImage uploads an image asset.
func (d *Destination) SendImage(ctx context.Context, asset model.CapturedAsset) error {
	asset.Kind = model.KindImage
	return d.sendFile(ctx, asset)
}

// SendVideo uploads a video asset.
func (d *Destination) SendVideo(ctx context.Context, asset model.CapturedAsset) error {
	asset.Kind = model.KindVideo
	return d.sendFile(ctx, asset)
}

func (d *Destination) sendFile(ctx context.Context, asset model.CapturedAsset) error {
	if !d.caps.CanSend(asset.Kind) {
		return nil
	}
	if d.State() != model.StateStarted {
		return fmt.Errorf("%s: send %s: %w", d.Name(), asset.Kind, ErrNotStarted)
	}

	if err := d.transport.SendFile(ctx, asset); err != nil {
		d.metrics.RecordSend(ctx, d.Name(), asset.Kind.String(), telemetry.OutcomeFailed)
		return fmt.Errorf("%s: send %s %s: %w", d.Name(), asset.Kind, asset.Name, err)
	}
	d.metrics.RecordSend(ctx, d.Name(), asset.Kind.String(), telemetry.OutcomeSent)
	return nil
}
