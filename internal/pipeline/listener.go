package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ColonelBlimp/ultrasonic/internal/debounce"
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/ColonelBlimp/ultrasonic/internal/observe"
)

var (
	// ErrAnalyzerRequired indicates an analyzer is required
	ErrAnalyzerRequired = errors.New("analyzer is required")
	// ErrDeciderRequired indicates a decider is required
	ErrDeciderRequired = errors.New("decider is required")
	// ErrMachineRequired indicates a debounce machine is required
	ErrMachineRequired = errors.New("debounce machine is required")
)

// rejectLogEvery limits error logging for a persistently broken producer.
const rejectLogEvery = 100

// Config holds listener configuration.
type Config struct {
	// OverlapPct is the frame overlap percentage 0-99 (from config: overlap_pct)
	OverlapPct int
	// TickInterval is how often Run re-checks the silence deadline (from config: tick_interval)
	TickInterval time.Duration
}

// Listener runs the per-frame path: frame assembly, FFT, presence decision
// and debounce. Feed is meant to be called from the capture callback and
// never blocks on I/O.
type Listener struct {
	config   Config
	analyzer *dsp.Analyzer
	decider  dsp.Decider
	machine  *debounce.Machine
	metrics  *observe.Metrics
	logger   *slog.Logger

	// mu serializes Feed/ProcessFrame against Stop; the analyzer and framer
	// keep scratch buffers.
	mu       sync.Mutex
	framer   *Framer
	stopped  bool
	rejected uint64
}

// Option configures a Listener.
type Option func(*Listener)

// WithMetrics records frame statistics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener assembles a listener. The framer is sized from the analyzer.
func NewListener(cfg Config, analyzer *dsp.Analyzer, decider dsp.Decider, machine *debounce.Machine, opts ...Option) (*Listener, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	if decider == nil {
		return nil, ErrDeciderRequired
	}
	if machine == nil {
		return nil, ErrMachineRequired
	}

	framer, err := NewFramer(analyzer.FFTSize(), cfg.OverlapPct)
	if err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}

	l := &Listener{
		config:   cfg,
		analyzer: analyzer,
		decider:  decider,
		machine:  machine,
		framer:   framer,
		metrics:  observe.Noop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Feed accepts a capture chunk of any length and processes every complete frame.
func (l *Listener) Feed(samples []float32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	l.framer.Push(samples, func(frame []float32) {
		l.processFrame(frame)
	})
}

// ProcessFrame analyzes one complete frame and feeds the decision to the
// debounce machine. Returns the raw decision.
func (l *Listener) ProcessFrame(frame []float32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return false
	}
	return l.processFrame(frame)
}

// processFrame never fails: an analysis error counts as an absent frame so
// the capture callback keeps running. Caller holds l.mu.
func (l *Listener) processFrame(samples []float32) bool {
	start := time.Now()
	present := false

	spectrum, err := l.analyzer.Analyze(dsp.Frame{Samples: samples, SampleRate: l.analyzer.Config().SampleRate})
	if err != nil {
		l.reject(err)
	} else {
		present = l.decider.Decide(spectrum)
		l.metrics.RecordFrame(context.Background(), present, time.Since(start).Seconds())
	}

	l.machine.Observe(present)
	return present
}

func (l *Listener) reject(err error) {
	l.metrics.FramesRejected.Add(context.Background(), 1)
	if l.rejected%rejectLogEvery == 0 {
		l.logger.Error("frame rejected, treating as absent", "error", err, "rejected", l.rejected+1)
	}
	l.rejected++
}

// Run re-checks the silence deadline every TickInterval until ctx is done,
// so the signal is released even if the capture device stops delivering.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.machine.Tick()
		}
	}
}

// Stop stops frame processing and forces the debounce machine Off, cancelling
// any pending timer. Returns the signal state before stopping.
func (l *Listener) Stop() debounce.State {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	l.framer.Reset()
	return l.machine.Stop()
}

// State returns the stable signal state
func (l *Listener) State() debounce.State {
	return l.machine.State()
}

// Rejected returns the number of frames that failed analysis
func (l *Listener) Rejected() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}
