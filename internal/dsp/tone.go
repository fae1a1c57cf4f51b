// internal/dsp/tone.go
package dsp

import (
	"errors"
	"math"
)

// ErrInvalidAmplitude indicates amplitude must be in (0, 1]
var ErrInvalidAmplitude = errors.New("amplitude must be greater than 0.0 and at most 1.0")

// ToneConfig holds configuration for tone synthesis.
type ToneConfig struct {
	// Frequency of the emitted tone in Hz (from config: emit_frequency)
	Frequency float64
	// SampleRate of the output device in Hz (from config: sample_rate)
	SampleRate float64
	// Amplitude is the peak level, 0 means 1.0 (from config: amplitude)
	Amplitude float64
}

// ToneEmitter produces a continuous sine stream. The sample index carries over
// between Fill calls so consecutive buffers join without a phase jump.
// It is not safe for concurrent use; the playback callback owns it.
type ToneEmitter struct {
	config ToneConfig
	omega  float64 // 2π·f/sampleRate
	period uint64  // exact loop length in samples, 0 if none
	t      uint64
}

// NewToneEmitter validates cfg and returns an emitter positioned at t=0.
func NewToneEmitter(cfg ToneConfig) (*ToneEmitter, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Frequency <= 0 || cfg.Frequency >= cfg.SampleRate/2 {
		return nil, ErrInvalidFrequency
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1.0
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 1 {
		return nil, ErrInvalidAmplitude
	}

	return &ToneEmitter{
		config: cfg,
		omega:  2 * math.Pi * cfg.Frequency / cfg.SampleRate,
		period: loopPeriod(cfg.Frequency, cfg.SampleRate),
	}, nil
}

// Fill writes the next len(buf) samples of the tone into buf.
func (e *ToneEmitter) Fill(buf []float32) {
	amp := e.config.Amplitude
	for i := range buf {
		buf[i] = float32(amp * math.Sin(e.omega*float64(e.t)))
		e.t++
		if e.period > 0 && e.t == e.period {
			e.t = 0
		}
	}
}

// Position returns the sample index of the next sample Fill will produce,
// reduced modulo the loop period when one exists.
func (e *ToneEmitter) Position() uint64 {
	return e.t
}

// Period returns the exact loop length in samples, or 0 if the waveform
// does not repeat within maxLoopSeconds.
func (e *ToneEmitter) Period() uint64 {
	return e.period
}

// Reset rewinds the stream to t=0
func (e *ToneEmitter) Reset() {
	e.t = 0
}

// Config returns the emitter configuration
func (e *ToneEmitter) Config() ToneConfig {
	return e.config
}

// NewToneBuffer renders one loopable buffer holding a whole number of cycles.
// Its length is the exact loop period when one exists. Otherwise it holds
// about one second of whole cycles at a frequency nudged to fit that length;
// the pitch error is below sampleRate/(2·len), a fraction of a hertz.
func NewToneBuffer(cfg ToneConfig) ([]float32, error) {
	e, err := NewToneEmitter(cfg)
	if err != nil {
		return nil, err
	}

	n := e.period
	if n == 0 {
		cycles := math.Max(1, math.Round(cfg.Frequency))
		n = uint64(math.Round(cycles * cfg.SampleRate / cfg.Frequency))
		fitted := cfg
		fitted.Frequency = cycles * cfg.SampleRate / float64(n)
		if e, err = NewToneEmitter(fitted); err != nil {
			return nil, err
		}
	}

	buf := make([]float32, n)
	e.Fill(buf)
	return buf, nil
}

const (
	// maxLoopSeconds caps the exact loop period
	maxLoopSeconds = 10
	// maxScaleDigits is how many decimal places of f and sampleRate are honoured
	maxScaleDigits = 6
)

// loopPeriod returns the number of samples after which the waveform repeats
// exactly: sr/gcd(f, sr) once both are scaled by 10^k to whole numbers.
// Returns 0 when no such period exists within maxLoopSeconds.
func loopPeriod(freq, sampleRate float64) uint64 {
	scale := 1.0
	for k := 0; k <= maxScaleDigits; k++ {
		f, sr := freq*scale, sampleRate*scale
		if isWhole(f) && isWhole(sr) {
			fi, sri := uint64(math.Round(f)), uint64(math.Round(sr))
			period := sri / gcd(fi, sri)
			if float64(period) > maxLoopSeconds*sampleRate {
				return 0
			}
			return period
		}
		scale *= 10
	}
	return 0
}

// isWhole tolerates the representation error of decimal fractions like 18999.7
func isWhole(x float64) bool {
	return math.Abs(x-math.Round(x)) <= 1e-9*math.Max(1, math.Abs(x))
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
