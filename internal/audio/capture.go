// internal/audio/capture.go
package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Config holds audio device configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns sensible defaults for ultrasonic capture
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		BufferSize:  512,
	}
}

// SampleCallback is called directly from the audio thread with new samples.
// The slice aliases device memory and is only valid during the call; copy
// anything kept. Must be non-blocking and fast.
type SampleCallback func(samples []float32)

// Capture reads mono float32 audio from an input device
type Capture struct {
	config Config
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu          sync.Mutex // guards ctx and device
	running     atomic.Bool
	closed      atomic.Bool
	callbackPtr atomic.Pointer[SampleCallback]
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{config: cfg}
}

// SetCallback sets the real-time sample callback. Pass nil to clear it.
// Safe to call while running.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callbackPtr.Store(nil)
		return
	}
	c.callbackPtr.Store(&cb)
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	ctx, err := initContext()
	if err != nil {
		return err
	}
	c.ctx = ctx
	return nil
}

// Start begins audio capture. Capture stops when ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	if c.running.Load() {
		return ErrAlreadyRunning
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return ErrNotInitialized
	}

	id, err := deviceID(c.ctx, malgo.Capture, c.config.DeviceIndex)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = id

	onRecvFrames := func(_, inputSamples []byte, _ uint32) {
		if len(inputSamples) == 0 || c.closed.Load() {
			return
		}
		if cbPtr := c.callbackPtr.Load(); cbPtr != nil {
			(*cbPtr)(bytesAsFloat32(inputSamples))
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return nil
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return ErrNotRunning
	}
	c.stopLocked()
	return nil
}

func (c *Capture) stopLocked() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	c.running.Store(false)
}

// Close releases all audio resources. Safe to call more than once.
func (c *Capture) Close() error {
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		c.stopLocked()
	}
	err := freeContext(c.ctx)
	c.ctx = nil
	return err
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}
