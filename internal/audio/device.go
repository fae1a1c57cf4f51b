// Package audio wraps malgo capture and playback devices for mono float32
// streams.
package audio

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
	ErrClosed         = errors.New("audio device closed")
)

// Device describes one enumerated device.
type Device struct {
	Index     int
	Name      string
	IsDefault bool
}

// initContext initializes the malgo backend
func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return ctx, nil
}

// freeContext releases a context created by initContext
func freeContext(ctx *malgo.AllocatedContext) error {
	if ctx == nil {
		return nil
	}
	err := ctx.Uninit()
	ctx.Free()
	if err != nil {
		return fmt.Errorf("uninit context: %w", err)
	}
	return nil
}

// deviceID resolves index to a device ID. A negative index selects the
// backend default and returns nil.
func deviceID(ctx *malgo.AllocatedContext, kind malgo.DeviceType, index int) (unsafe.Pointer, error) {
	if index < 0 {
		return nil, nil
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if index >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range (have %d devices)", index, len(infos))
	}
	return infos[index].ID.Pointer(), nil
}

// ListDevices enumerates capture or playback devices.
func ListDevices(kind malgo.DeviceType) ([]Device, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() { _ = freeContext(ctx) }()

	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{Index: i, Name: info.Name(), IsDefault: info.IsDefault != 0}
	}
	return devices, nil
}

// bytesAsFloat32 views little-endian F32 device memory as samples without
// copying. The result aliases data and is only valid while data is.
func bytesAsFloat32(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
}
