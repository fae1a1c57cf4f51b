// internal/dsp/spectrum.go
// Package dsp implements spectral analysis, presence detection and tone
// synthesis for the ultrasonic detector.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

var (
	// ErrSetup indicates the FFT backend could not be prepared for the configured size
	ErrSetup = errors.New("fft setup failed")
	// ErrInvalidFrameLength indicates a frame length differs from the configured FFT size
	ErrInvalidFrameLength = errors.New("frame length does not match fft size")
	// ErrSampleRateMismatch indicates a frame was captured at a different sample rate
	ErrSampleRateMismatch = errors.New("frame sample rate does not match analyzer")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidWindow indicates an unknown window function name
	ErrInvalidWindow = errors.New("unknown window function")
)

// Window selects the weighting applied to a frame before the FFT.
type Window string

const (
	// WindowNone leaves samples untouched (rectangular window)
	WindowNone Window = "none"
	// WindowHann applies a Hann window to reduce spectral leakage
	WindowHann Window = "hann"
)

// Frame is one block of mono samples handed to the analyzer.
// Samples are float32 normalized to -1.0 to 1.0.
type Frame struct {
	Samples    []float32
	SampleRate float64
}

// Spectrum holds the magnitude of each FFT bin below Nyquist.
//
// Magnitudes are unscaled |X[k]| values: a sinusoid of amplitude A that sits
// exactly on a bin reads A*FFTSize/2 with no window applied. All thresholds
// in this package use that convention.
type Spectrum struct {
	Magnitudes []float64
	SampleRate float64
	FFTSize    int
}

// BinFrequency returns the center frequency in Hz of bin i.
func (s Spectrum) BinFrequency(i int) float64 {
	return float64(i) * s.SampleRate / float64(s.FFTSize)
}

// Len returns the number of bins (FFTSize/2).
func (s Spectrum) Len() int {
	return len(s.Magnitudes)
}

// AnalyzerConfig holds configuration for the spectrum analyzer.
type AnalyzerConfig struct {
	// FFTSize is the number of samples per frame, must be a power of two (from config: fft_size)
	FFTSize int
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate float64
	// Window is the weighting function applied before the transform (from config: window)
	Window Window
}

// Analyzer converts fixed-length frames into magnitude spectra.
// It reuses internal buffers and is not safe for concurrent use.
type Analyzer struct {
	config  AnalyzerConfig
	fft     *fourier.FFT
	weights []float64 // nil for WindowNone
	input   []float64
	coeffs  []complex128
}

// NewAnalyzer prepares the FFT plan for the configured size.
// A size that is not a power of two, or a backend that fails to initialize,
// yields ErrSetup.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.FFTSize < 2 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("%w: size %d is not a power of two", ErrSetup, cfg.FFTSize)
	}
	if cfg.Window == "" {
		cfg.Window = WindowNone
	}

	var weights []float64
	switch cfg.Window {
	case WindowNone:
	case WindowHann:
		weights = make([]float64, cfg.FFTSize)
		for i := range weights {
			weights[i] = 1
		}
		window.Hann(weights)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, cfg.Window)
	}

	plan, err := newPlan(cfg.FFTSize)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		config:  cfg,
		fft:     plan,
		weights: weights,
		input:   make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, cfg.FFTSize/2+1),
	}, nil
}

// newPlan builds the gonum FFT, converting a backend panic into ErrSetup.
func newPlan(n int) (plan *fourier.FFT, err error) {
	defer func() {
		if r := recover(); r != nil {
			plan = nil
			err = fmt.Errorf("%w: %v", ErrSetup, r)
		}
	}()
	plan = fourier.NewFFT(n)
	if plan.Len() != n {
		return nil, fmt.Errorf("%w: backend returned length %d, want %d", ErrSetup, plan.Len(), n)
	}
	return plan, nil
}

// Analyze computes the magnitude spectrum of one frame.
// The returned Spectrum owns its slice; the frame is not retained.
func (a *Analyzer) Analyze(frame Frame) (Spectrum, error) {
	if len(frame.Samples) != a.config.FFTSize {
		return Spectrum{}, fmt.Errorf("%w: got %d samples, want %d",
			ErrInvalidFrameLength, len(frame.Samples), a.config.FFTSize)
	}
	if frame.SampleRate != 0 && frame.SampleRate != a.config.SampleRate {
		return Spectrum{}, fmt.Errorf("%w: got %v Hz, want %v Hz",
			ErrSampleRateMismatch, frame.SampleRate, a.config.SampleRate)
	}

	for i, s := range frame.Samples {
		v := float64(s)
		if a.weights != nil {
			v *= a.weights[i]
		}
		a.input[i] = v
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.input)

	half := a.config.FFTSize / 2
	mags := make([]float64, half)
	for k := 0; k < half; k++ {
		mags[k] = cmplx.Abs(a.coeffs[k])
	}

	return Spectrum{
		Magnitudes: mags,
		SampleRate: a.config.SampleRate,
		FFTSize:    a.config.FFTSize,
	}, nil
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() AnalyzerConfig {
	return a.config
}

// FFTSize returns the configured frame length
func (a *Analyzer) FFTSize() int {
	return a.config.FFTSize
}

// BinIndex returns the bin nearest freq, clamped to [0, fftSize/2-1].
func BinIndex(freq, sampleRate float64, fftSize int) int {
	bin := int(math.Round(freq / sampleRate * float64(fftSize)))
	last := fftSize/2 - 1
	if bin < 0 {
		return 0
	}
	if bin > last {
		return last
	}
	return bin
}
