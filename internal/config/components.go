package config

import (
	"github.com/ColonelBlimp/ultrasonic/internal/debounce"
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/ColonelBlimp/ultrasonic/internal/pipeline"
	"github.com/ColonelBlimp/ultrasonic/internal/recorder"
	"github.com/ColonelBlimp/ultrasonic/internal/session"
)

// ListenAnalyzer returns the analyzer configuration for listen mode
func (s *Settings) ListenAnalyzer() dsp.AnalyzerConfig {
	return dsp.AnalyzerConfig{
		FFTSize:    s.Listen.FFTSize,
		SampleRate: s.SampleRate,
		Window:     dsp.Window(s.Listen.Window),
	}
}

// ListenBand returns the broadband detector configuration
func (s *Settings) ListenBand() dsp.BandConfig {
	return dsp.BandConfig{
		MinFrequency: s.Listen.MinFrequency,
		Threshold:    s.Listen.Threshold,
		SampleRate:   s.SampleRate,
		FFTSize:      s.Listen.FFTSize,
	}
}

// ListenDebounce returns the listen mode release policy
func (s *Settings) ListenDebounce() debounce.Config {
	return s.Listen.DebounceSettings.config()
}

// BeaconAnalyzer returns the analyzer configuration for beacon mode
func (s *Settings) BeaconAnalyzer() dsp.AnalyzerConfig {
	return dsp.AnalyzerConfig{
		FFTSize:    s.Beacon.FFTSize,
		SampleRate: s.SampleRate,
		Window:     dsp.Window(s.Beacon.Window),
	}
}

// BeaconBin returns the single-bin detector configuration
func (s *Settings) BeaconBin() dsp.BinConfig {
	return dsp.BinConfig{
		TargetFrequency: s.Beacon.TargetFrequency,
		Threshold:       s.Beacon.Threshold,
		SampleRate:      s.SampleRate,
		FFTSize:         s.Beacon.FFTSize,
	}
}

// BeaconDebounce returns the beacon mode release policy
func (s *Settings) BeaconDebounce() debounce.Config {
	return s.Beacon.DebounceSettings.config()
}

// Tone returns the emitter configuration for beacon mode
func (s *Settings) Tone() dsp.ToneConfig {
	return dsp.ToneConfig{
		Frequency:  s.Beacon.EmitFrequency,
		SampleRate: s.SampleRate,
		Amplitude:  s.Beacon.Amplitude,
	}
}

// Pipeline returns the listener configuration
func (s *Settings) Pipeline() pipeline.Config {
	return pipeline.Config{
		OverlapPct:   s.OverlapPct,
		TickInterval: s.TickInterval,
	}
}

// Session returns the session controller configuration
func (s *Settings) Session() session.Config {
	return session.Config{
		Enabled: s.Recording.Enabled,
		Title:   s.Notify.Title,
		Body:    s.Notify.Body,
	}
}

// Recorder returns the WAV recorder configuration
func (s *Settings) Recorder() recorder.Config {
	return recorder.Config{
		Dir:        s.Recording.Dir,
		SampleRate: int(s.SampleRate),
	}
}

// S3Config returns the upload configuration
func (s *Settings) S3Config() recorder.S3Config {
	return recorder.S3Config{
		Endpoint:        s.S3.Endpoint,
		Bucket:          s.S3.Bucket,
		AccessKeyID:     s.S3.AccessKeyID,
		SecretAccessKey: s.S3.SecretAccessKey,
		Prefix:          s.S3.Prefix,
	}
}

func (d DebounceSettings) config() debounce.Config {
	return debounce.Config{
		Mode:    debounce.Mode(d.DebounceMode),
		Hold:    d.Hold,
		Silence: d.Silence,
	}
}
