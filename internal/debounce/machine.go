// internal/debounce/machine.go
// Package debounce turns noisy per-frame presence decisions into stable
// on/off signal events.
package debounce

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidMode indicates an unknown debounce mode
	ErrInvalidMode = errors.New("debounce mode must be \"timer\" or \"silence\"")
	// ErrInvalidHold indicates the timer hold must be positive
	ErrInvalidHold = errors.New("hold duration must be positive")
	// ErrInvalidSilence indicates the silence threshold must be positive
	ErrInvalidSilence = errors.New("silence duration must be positive")
	// ErrClockRequired indicates a clock is required
	ErrClockRequired = errors.New("clock is required")
)

// Mode selects how the machine decides the signal has gone away.
type Mode string

const (
	// ModeTimer arms a one-shot timer of Hold on every positive decision.
	// The signal goes Off when the timer fires.
	ModeTimer Mode = "timer"
	// ModeSilence compares the time since the last positive decision against
	// Silence on every negative decision and on every Tick.
	ModeSilence Mode = "silence"
)

// State is the stable signal state.
type State int

const (
	Off State = iota
	On
)

func (s State) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

// Event is emitted on every stable transition.
type Event struct {
	// State is the state just entered
	State State
	// At is when the transition happened
	At time.Time
	// Duration is how long the previous state lasted (zero on the first On)
	Duration time.Duration
}

// Callback receives transition events. It runs while the machine lock is
// held, so it must be fast, non-blocking, and must not call back into the Machine.
type Callback func(Event)

// Config holds debounce configuration.
type Config struct {
	// Mode is the release policy (from config: debounce_mode)
	Mode Mode
	// Hold is the timer delay used by ModeTimer (from config: hold)
	Hold time.Duration
	// Silence is the quiet period used by ModeSilence (from config: silence)
	Silence time.Duration
}

// Validate checks the duration used by the selected mode.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTimer:
		if c.Hold <= 0 {
			return ErrInvalidHold
		}
	case ModeSilence:
		if c.Silence <= 0 {
			return ErrInvalidSilence
		}
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidMode, c.Mode)
	}
	return nil
}

// Machine is the Off/On debounce state machine. A single positive decision
// turns it On; it returns Off only after the configured release policy
// elapses with no further positive decisions.
//
// All methods are safe for concurrent use. Timer callbacks are serialized
// with Observe through the same mutex.
type Machine struct {
	config Config
	clock  Clock

	mu          sync.Mutex
	state       State
	lastTrue    time.Time
	lastChange  time.Time
	timer       Timer
	generation  uint64 // bumped whenever a pending timer is superseded
	transitions uint64

	callbackPtr atomic.Pointer[Callback]
}

// New creates a machine in the Off state.
func New(cfg Config, clock Clock) (*Machine, error) {
	if clock == nil {
		return nil, ErrClockRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{config: cfg, clock: clock}, nil
}

// SetCallback sets the transition callback. Pass nil to clear it.
func (m *Machine) SetCallback(cb Callback) {
	if cb == nil {
		m.callbackPtr.Store(nil)
	} else {
		m.callbackPtr.Store(&cb)
	}
}

// Observe feeds one raw decision into the machine.
func (m *Machine) Observe(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()

	if present {
		m.lastTrue = now
		if m.state == Off {
			m.transition(On, now)
		}
		if m.config.Mode == ModeTimer {
			m.armTimer()
		}
		return
	}

	if m.config.Mode == ModeSilence {
		m.checkSilence(now)
	}
}

// Tick re-evaluates the silence deadline without a new decision, so the
// signal can still be released if frames stop arriving. No-op in ModeTimer.
func (m *Machine) Tick() {
	if m.config.Mode != ModeSilence {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSilence(m.clock.Now())
}

// Stop cancels any pending timer and forces the machine Off without
// emitting an event. Returns the state the machine was in.
func (m *Machine) Stop() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.cancelTimer()
	m.state = Off
	m.lastTrue = time.Time{}
	m.lastChange = time.Time{}
	return prev
}

// State returns the current stable state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastTrue returns the time of the most recent positive decision
func (m *Machine) LastTrue() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTrue
}

// Transitions returns the number of events emitted so far
func (m *Machine) Transitions() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions
}

// Config returns the machine configuration
func (m *Machine) Config() Config {
	return m.config
}

// checkSilence releases the signal once Silence has passed since the last
// positive decision. Caller holds m.mu.
func (m *Machine) checkSilence(now time.Time) {
	if m.state != On {
		return
	}
	if now.Sub(m.lastTrue) >= m.config.Silence {
		m.transition(Off, now)
	}
}

// armTimer supersedes any pending timer with a fresh one. Caller holds m.mu.
func (m *Machine) armTimer() {
	m.cancelTimer()
	gen := m.generation
	m.timer = m.clock.AfterFunc(m.config.Hold, func() {
		m.expire(gen)
	})
}

// cancelTimer stops the pending timer and invalidates its generation so a
// fire already in flight is ignored. Caller holds m.mu.
func (m *Machine) cancelTimer() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expire runs on the timer goroutine.
func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != On {
		return
	}
	m.timer = nil
	m.transition(Off, m.clock.Now())
}

// transition records the new state and emits the event. Caller holds m.mu.
func (m *Machine) transition(to State, now time.Time) {
	var duration time.Duration
	if !m.lastChange.IsZero() {
		duration = now.Sub(m.lastChange)
	}
	m.state = to
	m.lastChange = now
	m.transitions++

	if cbPtr := m.callbackPtr.Load(); cbPtr != nil {
		(*cbPtr)(Event{State: to, At: now, Duration: duration})
	}
}
