// Package recorder captures audio to WAV files between session start and
// stop, optionally handing finished files to object storage.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrAlreadyRecording indicates Start was called with a take open
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording indicates Stop was called without an open take
	ErrNotRecording = errors.New("not recording")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrDirRequired indicates an output directory is required
	ErrDirRequired = errors.New("recording directory is required")
)

const (
	bitDepth      = 16
	frameQueueLen = 256
	chunkCapacity = 1024
	filePrefix    = "recording-"
	fileTimestamp = "20060102-150405"
)

// Uploader stores a finished recording and returns a reference to it.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Config holds recorder configuration.
type Config struct {
	// Dir is where WAV files are written (from config: recording.dir)
	Dir string
	// SampleRate of the incoming samples in Hz (from config: sample_rate)
	SampleRate int
}

// WAV writes mono 16-bit PCM files. Write is called from the capture
// callback and never blocks; encoding happens on a per-take goroutine.
type WAV struct {
	config   Config
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time

	take    atomic.Pointer[take]
	chunks  sync.Pool // *[]float32 reused between Write and encode
	dropped atomic.Uint64
}

// take is one open recording.
type take struct {
	handle string
	path   string
	frames chan *[]float32
	stop   chan struct{}
	result chan error

	// mu is held shared while a chunk is queued and exclusively by Stop, so
	// nothing lands in frames once the encoder has been told to finish.
	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// Option configures a WAV recorder.
type Option func(*WAV)

// WithUploader uploads each finished file.
func WithUploader(u Uploader) Option {
	return func(w *WAV) { w.uploader = u }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *WAV) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWAV creates a WAV recorder.
func NewWAV(cfg Config, opts ...Option) (*WAV, error) {
	if cfg.Dir == "" {
		return nil, ErrDirRequired
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	w := &WAV{
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	w.chunks.New = func() any {
		chunk := make([]float32, 0, chunkCapacity)
		return &chunk
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start creates a new WAV file and returns its handle, the file name
// without extension.
func (w *WAV) Start(ctx context.Context) (string, error) {
	if w.take.Load() != nil {
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(w.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording dir: %w", err)
	}

	file, path, err := w.createFile()
	if err != nil {
		return "", err
	}

	t := &take{
		handle: strings.TrimSuffix(filepath.Base(path), ".wav"),
		path:   path,
		frames: make(chan *[]float32, frameQueueLen),
		stop:   make(chan struct{}),
		result: make(chan error, 1),
	}
	if !w.take.CompareAndSwap(nil, t) {
		_ = file.Close()
		_ = os.Remove(path)
		return "", ErrAlreadyRecording
	}

	go w.encode(t, file)
	return t.handle, nil
}

// createFile opens a fresh timestamped file, adding a counter when a file
// from the same second already exists.
func (w *WAV) createFile() (*os.File, string, error) {
	base := filePrefix + w.now().Format(fileTimestamp)
	for i := 0; i < 100; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.wav", base, i)
		}
		path := filepath.Join(w.config.Dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create recording file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create recording file: too many files named %s", base)
}

// Write queues a copy of samples for the open take. Samples arriving with
// no take open are ignored. A full queue, or a take that is already being
// stopped, drops the chunk and counts it.
func (w *WAV) Write(samples []float32) {
	t := w.take.Load()
	if t == nil || len(samples) == 0 {
		return
	}
	w.writeTake(t, samples)
}

func (w *WAV) writeTake(t *take, samples []float32) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.stopped {
		w.dropped.Add(1)
		return
	}

	chunk := w.chunks.Get().(*[]float32)
	*chunk = append((*chunk)[:0], samples...)

	select {
	case t.frames <- chunk:
	default:
		w.chunks.Put(chunk)
		t.dropped.Add(1)
		w.dropped.Add(1)
	}
}

// Stop finalizes the open take and returns the artifact reference: the
// uploaded object URI when an uploader is set and succeeds, otherwise the
// local path.
func (w *WAV) Stop(ctx context.Context) (string, error) {
	t := w.take.Swap(nil)
	if t == nil {
		return "", ErrNotRecording
	}

	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	close(t.stop)
	if err := <-t.result; err != nil {
		return "", fmt.Errorf("finalize %s: %w", t.handle, err)
	}

	if n := t.dropped.Load(); n > 0 {
		w.logger.Warn("recording dropped chunks", "handle", t.handle, "chunks", n)
	}

	if w.uploader == nil {
		return t.path, nil
	}

	ref, err := w.uploader.Upload(ctx, t.path)
	if err != nil {
		w.logger.Warn("upload failed, keeping local file", "path", t.path, "error", err)
		return t.path, nil
	}
	w.logger.Info("recording uploaded", "handle", t.handle, "ref", ref)
	return ref, nil
}

// Dropped returns the total number of chunks lost since the recorder was created
func (w *WAV) Dropped() uint64 {
	return w.dropped.Load()
}

// Recording reports whether a take is open
func (w *WAV) Recording() bool {
	return w.take.Load() != nil
}

// encode drains the take's queue into the encoder until stop is closed,
// then flushes the header and closes the file.
func (w *WAV) encode(t *take, file *os.File) {
	enc := wav.NewEncoder(file, w.config.SampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.config.SampleRate},
		SourceBitDepth: bitDepth,
	}

	var writeErr error
	write := func(chunk *[]float32) {
		defer w.chunks.Put(chunk)
		if writeErr != nil {
			return
		}
		buf.Data = toPCM16(buf.Data[:0], *chunk)
		writeErr = enc.Write(buf)
	}

	for {
		select {
		case chunk := <-t.frames:
			write(chunk)
		case <-t.stop:
			for {
				select {
				case chunk := <-t.frames:
					write(chunk)
				default:
					t.result <- errors.Join(writeErr, enc.Close(), file.Close())
					return
				}
			}
		}
	}
}

// toPCM16 converts float samples in [-1, 1] to 16-bit integers, clipping
// anything outside that range.
func toPCM16(dst []int, samples []float32) []int {
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		dst = append(dst, int(s*32767))
	}
	return dst
}
