// internal/dsp/spectrum_test.go
package dsp

import (
	"errors"
	"math"
	"testing"
)

// Test configuration constants matching config file defaults
const (
	testSampleRate = 48000.0
	testFFTSize    = 2048
	testNyquist    = testSampleRate / 2.0
)

// generateSineWave creates a sine wave at the specified frequency
func generateSineWave(frequency, sampleRate float64, numSamples int, amplitude float32) []float32 {
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / sampleRate
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}

// generateSilence creates a buffer of silence (zeros)
func generateSilence(numSamples int) []float32 {
	return make([]float32, numSamples)
}

// binFrequency returns the exact center frequency of bin k
func binFrequency(k int) float64 {
	return float64(k) * testSampleRate / testFFTSize
}

func createTestAnalyzer(t *testing.T, w Window) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(AnalyzerConfig{
		FFTSize:    testFFTSize,
		SampleRate: testSampleRate,
		Window:     w,
	})
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}
	return a
}

func TestNewAnalyzer_ValidConfig(t *testing.T) {
	a := createTestAnalyzer(t, "")

	if a.FFTSize() != testFFTSize {
		t.Errorf("FFTSize() = %d, want %d", a.FFTSize(), testFFTSize)
	}
	if a.Config().Window != WindowNone {
		t.Errorf("Window = %q, want %q", a.Config().Window, WindowNone)
	}
}

func TestNewAnalyzer_NotPowerOfTwo(t *testing.T) {
	testCases := []struct {
		name string
		size int
	}{
		{"zero", 0},
		{"one", 1},
		{"negative", -1024},
		{"odd", 1000},
		{"between powers", 3072},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAnalyzer(AnalyzerConfig{FFTSize: tc.size, SampleRate: testSampleRate})
			if !errors.Is(err, ErrSetup) {
				t.Errorf("expected ErrSetup, got: %v", err)
			}
		})
	}
}

func TestNewAnalyzer_InvalidSampleRate(t *testing.T) {
	_, err := NewAnalyzer(AnalyzerConfig{FFTSize: testFFTSize, SampleRate: 0})
	if err != ErrInvalidSampleRate {
		t.Errorf("expected ErrInvalidSampleRate, got: %v", err)
	}
}

func TestNewAnalyzer_UnknownWindow(t *testing.T) {
	_, err := NewAnalyzer(AnalyzerConfig{FFTSize: testFFTSize, SampleRate: testSampleRate, Window: "kaiser"})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got: %v", err)
	}
}

func TestAnalyze_InvalidFrameLength(t *testing.T) {
	a := createTestAnalyzer(t, WindowNone)

	for _, n := range []int{0, testFFTSize - 1, testFFTSize + 1, testFFTSize * 2} {
		_, err := a.Analyze(Frame{Samples: make([]float32, n)})
		if !errors.Is(err, ErrInvalidFrameLength) {
			t.Errorf("len %d: expected ErrInvalidFrameLength, got: %v", n, err)
		}
	}
}

func TestAnalyze_SampleRateMismatch(t *testing.T) {
	a := createTestAnalyzer(t, WindowNone)

	_, err := a.Analyze(Frame{Samples: generateSilence(testFFTSize), SampleRate: 44100})
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Errorf("expected ErrSampleRateMismatch, got: %v", err)
	}

	// Zero sample rate means "unspecified" and is accepted
	if _, err := a.Analyze(Frame{Samples: generateSilence(testFFTSize)}); err != nil {
		t.Errorf("unexpected error for unspecified rate: %v", err)
	}
}

func TestAnalyze_SpectrumShape(t *testing.T) {
	a := createTestAnalyzer(t, WindowNone)

	s, err := a.Analyze(Frame{Samples: generateSilence(testFFTSize), SampleRate: testSampleRate})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if s.Len() != testFFTSize/2 {
		t.Errorf("spectrum length = %d, want %d", s.Len(), testFFTSize/2)
	}
	for i, m := range s.Magnitudes {
		if m != 0 {
			t.Fatalf("silence bin %d = %v, want 0", i, m)
		}
	}
	if got := s.BinFrequency(768); got != 18000 {
		t.Errorf("BinFrequency(768) = %v, want 18000", got)
	}
}

func TestAnalyze_OnBinToneMagnitude(t *testing.T) {
	a := createTestAnalyzer(t, WindowNone)

	testCases := []struct {
		name      string
		bin       int
		amplitude float32
	}{
		{"18kHz full scale", 768, 1.0},
		{"18kHz quiet", 768, 0.1},
		{"19kHz half", 811, 0.5},
		{"low tone", 40, 0.8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			samples := generateSineWave(binFrequency(tc.bin), testSampleRate, testFFTSize, tc.amplitude)
			s, err := a.Analyze(Frame{Samples: samples, SampleRate: testSampleRate})
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}

			want := float64(tc.amplitude) * testFFTSize / 2
			got := s.Magnitudes[tc.bin]
			if math.Abs(got-want)/want > 0.001 {
				t.Errorf("bin %d magnitude = %v, want %v", tc.bin, got, want)
			}

			// The peak must be at the tone bin
			peak := 0
			for i, m := range s.Magnitudes {
				if m > s.Magnitudes[peak] {
					peak = i
				}
			}
			if peak != tc.bin {
				t.Errorf("peak bin = %d, want %d", peak, tc.bin)
			}
		})
	}
}

func TestAnalyze_DoesNotMutateFrame(t *testing.T) {
	a := createTestAnalyzer(t, WindowHann)

	samples := generateSineWave(19000, testSampleRate, testFFTSize, 0.5)
	orig := make([]float32, len(samples))
	copy(orig, samples)

	if _, err := a.Analyze(Frame{Samples: samples}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i := range samples {
		if samples[i] != orig[i] {
			t.Fatalf("sample %d modified: %v -> %v", i, orig[i], samples[i])
		}
	}
}

func TestAnalyze_ReturnsIndependentSpectra(t *testing.T) {
	a := createTestAnalyzer(t, WindowNone)

	first, _ := a.Analyze(Frame{Samples: generateSineWave(binFrequency(768), testSampleRate, testFFTSize, 1)})
	before := first.Magnitudes[768]
	_, _ = a.Analyze(Frame{Samples: generateSilence(testFFTSize)})

	if first.Magnitudes[768] != before {
		t.Error("later Analyze call overwrote an earlier spectrum")
	}
}

func TestAnalyze_HannReducesLeakage(t *testing.T) {
	rect := createTestAnalyzer(t, WindowNone)
	hann := createTestAnalyzer(t, WindowHann)

	// Half a bin off-center produces maximum leakage
	freq := binFrequency(700) + testSampleRate/testFFTSize/2
	samples := generateSineWave(freq, testSampleRate, testFFTSize, 1)

	r, err := rect.Analyze(Frame{Samples: samples})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	h, err := hann.Analyze(Frame{Samples: samples})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	far := 760
	if h.Magnitudes[far] >= r.Magnitudes[far] {
		t.Errorf("hann leakage at bin %d = %v, rectangular = %v; want hann lower",
			far, h.Magnitudes[far], r.Magnitudes[far])
	}
}

func TestBinIndex(t *testing.T) {
	testCases := []struct {
		name    string
		freq    float64
		fftSize int
		want    int
	}{
		{"19kHz 4096", 19000, 4096, 1621},
		{"19kHz 2048", 19000, 2048, 811},
		{"18kHz exact", 18000, 2048, 768},
		{"zero", 0, 2048, 0},
		{"negative clamps", -100, 2048, 0},
		{"nyquist clamps", testNyquist, 2048, 1023},
		{"above nyquist clamps", 30000, 2048, 1023},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BinIndex(tc.freq, testSampleRate, tc.fftSize); got != tc.want {
				t.Errorf("BinIndex(%v) = %d, want %d", tc.freq, got, tc.want)
			}
		})
	}
}

func BenchmarkAnalyze(b *testing.B) {
	a, err := NewAnalyzer(AnalyzerConfig{FFTSize: 4096, SampleRate: testSampleRate, Window: WindowHann})
	if err != nil {
		b.Fatal(err)
	}
	frame := Frame{Samples: generateSineWave(19000, testSampleRate, 4096, 0.5)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Analyze(frame)
	}
}
