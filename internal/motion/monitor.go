// Package motion turns periodic sensor levels into motion edges.
package motion

import (
	"sync"
	"time"

	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// State is the motion state mirrored from the last observed edge.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Option configures a Monitor.
type Option func(*Monitor)

// OnDetected sets the rising edge callback.
func OnDetected(fn func(at time.Time)) Option {
	return func(m *Monitor) {
		m.onDetected = fn
	}
}

// OnEnded sets the falling edge callback.
func OnEnded(fn func(at time.Time)) Option {
	return func(m *Monitor) {
		m.onEnded = fn
	}
}

// WithNow sets the clock used for detection timestamps.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor is an edge detector: callbacks fire on level changes only.
type Monitor struct {
	mu           sync.Mutex
	state        State
	lastDetected time.Time

	onDetected func(time.Time)
	onEnded    func(time.Time)
	now        func() time.Time
}

// NewMonitor creates an idle monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe processes one reading and reports whether it caused a transition.
// Callbacks run synchronously after the state is updated.
func (m *Monitor) Observe(level model.Level) bool {
	m.mu.Lock()
	now := m.now()

	var cb func(time.Time)
	switch {
	case level == model.High && m.state == Idle:
		m.state = Active
		m.lastDetected = now
		cb = m.onDetected
	case level == model.Low && m.state == Active:
		m.state = Idle
		cb = m.onEnded
	default:
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	if cb != nil {
		cb(now)
	}
	return true
}

// State returns the current motion state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastDetected returns the time of the last rising edge, or the zero time.
func (m *Monitor) LastDetected() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDetected
}

// InQuietWindow reports whether now is within quiet of the last detection.
// Polling is skipped during this window.
func (m *Monitor) InQuietWindow(now time.Time, quiet time.Duration) bool {
	last := m.LastDetected()
	return !last.IsZero() && now.Sub(last) < quiet
}
