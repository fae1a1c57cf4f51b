// Package pipeline wires frames from the capture callback through spectral
// analysis, presence detection and debounce.
package pipeline

import "errors"

var (
	// ErrInvalidFrameSize indicates frame size must be positive
	ErrInvalidFrameSize = errors.New("frame size must be positive")
	// ErrInvalidOverlap indicates overlap percentage must be 0-99
	ErrInvalidOverlap = errors.New("overlap percentage must be between 0 and 99")
)

// Framer reassembles arbitrarily sized capture chunks into fixed-size frames.
// Consecutive frames may overlap by a configured percentage.
// It is not safe for concurrent use.
type Framer struct {
	size    int
	hopSize int // samples to advance between frames
	buffer  []float32
}

// NewFramer creates a framer emitting frames of size samples.
func NewFramer(size, overlapPct int) (*Framer, error) {
	if size <= 0 {
		return nil, ErrInvalidFrameSize
	}
	if overlapPct < 0 || overlapPct >= 100 {
		return nil, ErrInvalidOverlap
	}
	overlap := (size * overlapPct) / 100
	return &Framer{
		size:    size,
		hopSize: size - overlap,
		buffer:  make([]float32, 0, 2*size),
	}, nil
}

// Push appends samples and calls emit once per complete frame. Each frame is
// a fresh slice the callee may keep.
func (f *Framer) Push(samples []float32, emit func(frame []float32)) {
	f.buffer = append(f.buffer, samples...)

	for len(f.buffer) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buffer[:f.size])
		emit(frame)

		// Slide the buffer by hopSize
		n := copy(f.buffer, f.buffer[f.hopSize:])
		f.buffer = f.buffer[:n]
	}
}

// Buffered returns the number of samples waiting for a complete frame
func (f *Framer) Buffered() int {
	return len(f.buffer)
}

// Reset drops any partial frame
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
}

// Size returns the frame size
func (f *Framer) Size() int {
	return f.size
}

// HopSize returns the number of new samples between frame starts
func (f *Framer) HopSize() int {
	return f.hopSize
}
