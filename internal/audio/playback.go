package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// ErrSourceRequired indicates playback needs a sample source
var ErrSourceRequired = errors.New("playback source is required")

// Source fills an output buffer with the next samples. It runs on the audio
// thread and must not block.
type Source interface {
	Fill(buf []float32)
}

// Playback writes mono float32 audio pulled from a Source to an output device.
type Playback struct {
	config Config
	source Source

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running atomic.Bool
	frames  atomic.Uint64
}

// NewPlayback creates a playback instance for src.
func NewPlayback(cfg Config, src Source) (*Playback, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}
	return &Playback{config: cfg, source: src}, nil
}

// Init initializes the audio backend
func (p *Playback) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, err := initContext()
	if err != nil {
		return err
	}
	p.ctx = ctx
	return nil
}

// Start begins playback. Playback stops when ctx is cancelled.
func (p *Playback) Start(ctx context.Context) error {
	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return ErrNotInitialized
	}

	id, err := deviceID(p.ctx, malgo.Playback, p.config.DeviceIndex)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = p.config.SampleRate
	deviceConfig.PeriodSizeInFrames = p.config.BufferSize
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.Playback.DeviceID = id

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: p.onSendFrames})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.device = device
	p.running.Store(true)

	go func() {
		<-ctx.Done()
		_ = p.Stop()
	}()

	return nil
}

// onSendFrames fills the device buffer in place.
func (p *Playback) onSendFrames(outputSamples, _ []byte, _ uint32) {
	out := bytesAsFloat32(outputSamples)
	if len(out) == 0 {
		return
	}
	p.source.Fill(out)
	p.frames.Add(uint64(len(out)))
}

// Stop stops playback
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return ErrNotRunning
	}
	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	p.running.Store(false)
	return nil
}

// Close releases all audio resources
func (p *Playback) Close() error {
	if p.running.Load() {
		_ = p.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := freeContext(p.ctx)
	p.ctx = nil
	return err
}

// IsRunning returns true if playback is active
func (p *Playback) IsRunning() bool {
	return p.running.Load()
}

// FramesWritten returns the number of samples handed to the device
func (p *Playback) FramesWritten() uint64 {
	return p.frames.Load()
}
