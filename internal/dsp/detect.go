// internal/dsp/detect.go
package dsp

import (
	"errors"
	"math"
)

var (
	// ErrInvalidThreshold indicates threshold must be non-negative
	ErrInvalidThreshold = errors.New("threshold must be non-negative")
	// ErrInvalidFrequency indicates frequency must be positive and below Nyquist
	ErrInvalidFrequency = errors.New("frequency must be positive and less than Nyquist frequency")
	// ErrInvalidFFTSize indicates fft size must be a power of two
	ErrInvalidFFTSize = errors.New("fft size must be a power of two")
)

// Decider turns one spectrum into a raw present/absent decision.
// Implementations hold no per-frame state.
type Decider interface {
	Decide(s Spectrum) bool
}

// BandConfig configures the broadband detector.
type BandConfig struct {
	// MinFrequency is the lower edge of the watched band in Hz (from config: min_frequency)
	MinFrequency float64
	// Threshold is the magnitude that must be exceeded (from config: threshold)
	Threshold float64
	// SampleRate and FFTSize must match the analyzer feeding this detector
	SampleRate float64
	FFTSize    int
}

// BandDetector reports presence when any bin between MinFrequency and Nyquist
// exceeds the threshold. It tolerates drift of the emitting device.
type BandDetector struct {
	config   BandConfig
	startBin int
	lastBin  int
}

// NewBandDetector validates cfg and precomputes the bin range.
func NewBandDetector(cfg BandConfig) (*BandDetector, error) {
	if err := checkGeometry(cfg.MinFrequency, cfg.SampleRate, cfg.FFTSize); err != nil {
		return nil, err
	}
	if cfg.Threshold < 0 {
		return nil, ErrInvalidThreshold
	}

	start := int(math.Ceil(cfg.MinFrequency * float64(cfg.FFTSize) / cfg.SampleRate))
	last := cfg.FFTSize/2 - 1
	if start > last {
		// Every analyzable bin lies below MinFrequency
		return nil, ErrInvalidFrequency
	}

	return &BandDetector{config: cfg, startBin: start, lastBin: last}, nil
}

// Decide returns true iff the band maximum is strictly greater than the threshold.
func (d *BandDetector) Decide(s Spectrum) bool {
	_, peak := d.Peak(s)
	return peak > d.config.Threshold
}

// Peak returns the strongest bin inside the band and its magnitude.
// Returns -1, 0 if the spectrum is shorter than the band start.
func (d *BandDetector) Peak(s Spectrum) (int, float64) {
	best, peak := -1, 0.0
	last := d.lastBin
	if last >= len(s.Magnitudes) {
		last = len(s.Magnitudes) - 1
	}
	for i := d.startBin; i <= last; i++ {
		if best < 0 || s.Magnitudes[i] > peak {
			best, peak = i, s.Magnitudes[i]
		}
	}
	return best, peak
}

// StartBin returns the first bin inside the band
func (d *BandDetector) StartBin() int {
	return d.startBin
}

// Config returns the detector configuration
func (d *BandDetector) Config() BandConfig {
	return d.config
}

// BinConfig configures the single-bin detector.
type BinConfig struct {
	// TargetFrequency is the tone to listen for in Hz (from config: target_frequency)
	TargetFrequency float64
	// Threshold is the magnitude that must be exceeded (from config: threshold)
	Threshold float64
	// SampleRate and FFTSize must match the analyzer feeding this detector
	SampleRate float64
	FFTSize    int
}

// BinDetector reports presence when the bin nearest TargetFrequency exceeds
// the threshold.
type BinDetector struct {
	config BinConfig
	bin    int
}

// NewBinDetector validates cfg and resolves the target bin.
func NewBinDetector(cfg BinConfig) (*BinDetector, error) {
	if err := checkGeometry(cfg.TargetFrequency, cfg.SampleRate, cfg.FFTSize); err != nil {
		return nil, err
	}
	if cfg.Threshold < 0 {
		return nil, ErrInvalidThreshold
	}
	return &BinDetector{
		config: cfg,
		bin:    BinIndex(cfg.TargetFrequency, cfg.SampleRate, cfg.FFTSize),
	}, nil
}

// Decide returns true iff the target bin magnitude is strictly greater than the threshold.
func (d *BinDetector) Decide(s Spectrum) bool {
	return d.Magnitude(s) > d.config.Threshold
}

// Magnitude returns the target bin magnitude, or 0 if the spectrum is too short.
func (d *BinDetector) Magnitude(s Spectrum) float64 {
	if d.bin >= len(s.Magnitudes) {
		return 0
	}
	return s.Magnitudes[d.bin]
}

// Bin returns the resolved target bin index
func (d *BinDetector) Bin() int {
	return d.bin
}

// Config returns the detector configuration
func (d *BinDetector) Config() BinConfig {
	return d.config
}

func checkGeometry(freq, sampleRate float64, fftSize int) error {
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		return ErrInvalidFFTSize
	}
	if freq <= 0 || freq >= sampleRate/2 {
		return ErrInvalidFrequency
	}
	return nil
}

// Compile-time checks
var (
	_ Decider = (*BandDetector)(nil)
	_ Decider = (*BinDetector)(nil)
)
