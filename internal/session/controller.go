// internal/session/controller.go
// Package session decides when to start and stop recording from stable
// signal events, and asks for consent once a recording has been captured.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ColonelBlimp/ultrasonic/internal/debounce"
	"github.com/ColonelBlimp/ultrasonic/internal/observe"
	"github.com/ColonelBlimp/ultrasonic/internal/observer"
)

var (
	// ErrRecorder indicates the recorder failed to start or stop
	ErrRecorder = errors.New("recorder failed")
	// ErrRecorderRequired indicates a recorder is required when recording is enabled
	ErrRecorderRequired = errors.New("recorder is required when recording is enabled")
)

// Default consent notification text
const (
	DefaultTitle = "Conversation recorded"
	DefaultBody  = "A conversation was recorded while the tone was present. Review it to give or withhold consent."
)

// eventQueueSize bounds transitions waiting for the session goroutine
const eventQueueSize = 64

// Recorder captures audio between Start and Stop.
type Recorder interface {
	// Start opens a new recording and returns its handle.
	Start(ctx context.Context) (string, error)
	// Stop finalizes the open recording and returns a reference to the artifact.
	Stop(ctx context.Context) (string, error)
}

// Notifier delivers a user-facing notification. It must not block for long;
// delivery failures are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// State is the recording session state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Config holds session configuration.
type Config struct {
	// Enabled turns recording on; when false only the signal state is tracked (from config: recording.enabled)
	Enabled bool
	// Title and Body are the consent notification text (from config: notify.title, notify.body)
	Title string
	Body  string
}

// Controller owns the Idle/Recording state. Events are applied one at a
// time: HandleEvent is serialized by op, and Run drains the queue fed by
// Submit on a single goroutine. Recorder calls happen outside mu, so the
// accessors stay responsive while a stop uploads; until Stop returns they
// still report Recording.
type Controller struct {
	config    Config
	recorder  Recorder
	notifier  Notifier
	publisher observer.Publisher
	metrics   *observe.Metrics
	logger    *slog.Logger

	events chan debounce.Event

	// op is held for a whole event, including recorder calls
	op sync.Mutex

	// mu guards the fields below
	mu        sync.Mutex
	state     State
	signal    debounce.State
	handle    string
	artifact  string
	lastError error
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher pushes a Status after every handled event.
func WithPublisher(p observer.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithMetrics records session statistics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an Idle controller. rec and n may be nil only when recording
// is disabled.
func New(cfg Config, rec Recorder, n Notifier, opts ...Option) (*Controller, error) {
	if cfg.Enabled && rec == nil {
		return nil, ErrRecorderRequired
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Body == "" {
		cfg.Body = DefaultBody
	}

	c := &Controller{
		config:   cfg,
		recorder: rec,
		notifier: n,
		metrics:  observe.Noop(),
		logger:   slog.Default(),
		events:   make(chan debounce.Event, eventQueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit queues an event for Run without blocking. It is suitable as a
// debounce.Callback. Returns false if the queue was full and the event dropped.
func (c *Controller) Submit(ev debounce.Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		c.metrics.EventsDropped.Add(context.Background(), 1)
		c.logger.Warn("session event queue full, dropping event", "signal", ev.State.String())
		return false
	}
}

// Run applies queued events until ctx is done. Recorder failures are logged
// and counted; they never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			if err := c.HandleEvent(ctx, ev); err != nil {
				c.logger.Error("session event failed", "signal", ev.State.String(), "error", err)
			}
		}
	}
}

// HandleEvent applies one stable signal event. Duplicate events that would
// not change the session state are no-ops.
func (c *Controller) HandleEvent(ctx context.Context, ev debounce.Event) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if ev.State != c.signal {
		c.metrics.RecordTransition(ctx, ev.State.String())
	}
	c.signal = ev.State
	c.mu.Unlock()

	var err error
	switch ev.State {
	case debounce.On:
		err = c.start(ctx)
	case debounce.Off:
		err = c.stop(ctx, true)
	}
	c.finish(err, ev.At)
	return err
}

// Shutdown finalizes an open recording without notifying and leaves the
// controller Idle with the signal Off.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	c.signal = debounce.Off
	c.mu.Unlock()

	err := c.stop(ctx, false)
	c.finish(err, time.Now())
	return err
}

// start opens a recording if Idle. A failed start stays Idle.
// Caller holds c.op.
func (c *Controller) start(ctx context.Context) error {
	if !c.config.Enabled || c.State() == Recording {
		return nil
	}

	handle, err := c.recorder.Start(ctx)
	if err != nil {
		c.metrics.RecordRecorderError(ctx, "start")
		return fmt.Errorf("%w: start: %w", ErrRecorder, err)
	}

	c.mu.Lock()
	c.state = Recording
	c.handle = handle
	c.mu.Unlock()

	c.metrics.RecordingsStarted.Add(ctx, 1)
	c.metrics.ActiveRecordings.Add(ctx, 1)
	c.logger.Info("recording started", "handle", handle)
	return nil
}

// stop finalizes the recording if Recording. A failed stop still returns to
// Idle so the session cannot get stuck. Caller holds c.op.
func (c *Controller) stop(ctx context.Context, notify bool) error {
	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	handle := c.handle
	c.mu.Unlock()

	artifact, err := c.recorder.Stop(ctx)

	c.mu.Lock()
	c.state = Idle
	c.handle = ""
	if err == nil {
		c.artifact = artifact
	}
	c.mu.Unlock()
	c.metrics.ActiveRecordings.Add(ctx, -1)

	if err != nil {
		c.metrics.RecordRecorderError(ctx, "stop")
		return fmt.Errorf("%w: stop %s: %w", ErrRecorder, handle, err)
	}

	c.logger.Info("recording stopped", "handle", handle, "artifact", artifact)

	if notify && c.notifier != nil {
		c.notifier.Notify(ctx, c.config.Title, c.config.Body)
		c.metrics.NotificationsSent.Add(ctx, 1)
	}
	return nil
}

// finish records the event outcome and publishes the resulting status.
func (c *Controller) finish(err error, at time.Time) {
	c.mu.Lock()
	c.lastError = err
	status := c.statusLocked(at)
	c.mu.Unlock()

	if c.publisher != nil {
		c.publisher.Publish(status)
	}
}

func (c *Controller) statusLocked(at time.Time) observer.Status {
	if at.IsZero() {
		at = time.Now()
	}
	status := observer.Status{
		Signal:    c.signal.String(),
		Recording: c.state == Recording,
		Handle:    c.handle,
		Artifact:  c.artifact,
		Timestamp: at,
	}
	if c.lastError != nil {
		status.Error = c.lastError.Error()
	}
	return status
}

// State returns the session state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Signal returns the last signal state seen
func (c *Controller) Signal() debounce.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// LastArtifact returns the reference of the most recently finished recording
func (c *Controller) LastArtifact() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// LastError returns the error from the most recent event, if any
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Pending returns the number of queued events
func (c *Controller) Pending() int {
	return len(c.events)
}
