// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	AppName       = "ultrasonic"
	ConfigType    = "yaml"
	DefaultConfig = `# Ultrasonic consent beacon configuration

# Audio device settings
device_index: -1          # capture device, -1 for default (see 'ultrasonic devices')
output_device_index: -1   # playback device for beacon mode, -1 for default
sample_rate: 48000        # Audio sample rate in Hz
buffer_size: 512          # Frames per device callback
overlap_pct: 0            # Analysis frame overlap percentage (0-99)

# Listen mode: watch the whole band above min_frequency
listen:
  fft_size: 2048          # Samples per analysis frame, power of 2
  min_frequency: 17000    # Lower edge of the watched band in Hz
  threshold: 10           # Bin magnitude that must be exceeded
  window: none            # none or hann
  debounce_mode: timer    # timer: off after 'hold' with no detection
  hold: 1.5s
  silence: 4s             # used when debounce_mode is silence

# Beacon mode: watch one target frequency and emit the tone
beacon:
  fft_size: 4096
  target_frequency: 19000
  threshold: 100
  window: none
  debounce_mode: silence  # silence: off once 'silence' has passed since the last detection
  hold: 1.5s
  silence: 4s
  emit_frequency: 19000   # Tone played on the output device
  amplitude: 0.8          # Peak amplitude (0-1]

# Recording
recording:
  enabled: true
  dir: recordings         # WAV files are written here

# Consent notification raised when a recording ends
notify:
  title: "Conversation recorded"
  body: "A conversation was recorded while the tone was present. Review it to give or withhold consent."
  webhook_url: ""         # optional JSON POST target

# Optional S3-compatible upload of finished recordings
s3:
  endpoint: ""            # empty for AWS
  bucket: ""
  access_key_id: ""
  secret_access_key: ""
  prefix: recordings

# Observability
http_addr: ":9090"        # /ws status stream and /metrics, empty to disable
tick_interval: 100ms      # silence deadline re-check interval

# Logging
log_level: info           # debug, info, warn, error
log_format: text          # text or json
debug: false              # shorthand for log_level debug
`
)

// DebounceSettings holds the release policy shared by both modes
type DebounceSettings struct {
	DebounceMode string        `mapstructure:"debounce_mode" validate:"oneof=timer silence"`
	Hold         time.Duration `mapstructure:"hold" validate:"gte=0"`
	Silence      time.Duration `mapstructure:"silence" validate:"gte=0"`
}

// ListenSettings configures broadband detection
type ListenSettings struct {
	FFTSize          int     `mapstructure:"fft_size" validate:"gte=64,lte=65536,pow2"`
	MinFrequency     float64 `mapstructure:"min_frequency" validate:"gt=0"`
	Threshold        float64 `mapstructure:"threshold" validate:"gte=0"`
	Window           string  `mapstructure:"window" validate:"oneof=none hann"`
	DebounceSettings `mapstructure:",squash"`
}

// BeaconSettings configures single-frequency detection and tone emission
type BeaconSettings struct {
	FFTSize          int     `mapstructure:"fft_size" validate:"gte=64,lte=65536,pow2"`
	TargetFrequency  float64 `mapstructure:"target_frequency" validate:"gt=0"`
	Threshold        float64 `mapstructure:"threshold" validate:"gte=0"`
	Window           string  `mapstructure:"window" validate:"oneof=none hann"`
	EmitFrequency    float64 `mapstructure:"emit_frequency" validate:"gt=0"`
	Amplitude        float64 `mapstructure:"amplitude" validate:"gt=0,lte=1"`
	DebounceSettings `mapstructure:",squash"`
}

// RecordingSettings configures the WAV recorder
type RecordingSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required_if=Enabled true"`
}

// NotifySettings configures the consent notification
type NotifySettings struct {
	Title      string `mapstructure:"title"`
	Body       string `mapstructure:"body"`
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}

// S3Settings configures optional upload of finished recordings
type S3Settings struct {
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=Bucket"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=Bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex       int     `mapstructure:"device_index" validate:"gte=-1"`
	OutputDeviceIndex int     `mapstructure:"output_device_index" validate:"gte=-1"`
	SampleRate        float64 `mapstructure:"sample_rate" validate:"gte=8000,lte=192000"`
	BufferSize        int     `mapstructure:"buffer_size" validate:"gte=64,lte=8192,pow2"`
	OverlapPct        int     `mapstructure:"overlap_pct" validate:"gte=0,lte=99"`

	Listen    ListenSettings    `mapstructure:"listen"`
	Beacon    BeaconSettings    `mapstructure:"beacon"`
	Recording RecordingSettings `mapstructure:"recording"`
	Notify    NotifySettings    `mapstructure:"notify"`
	S3        S3Settings        `mapstructure:"s3"`

	// Observability
	HTTPAddr     string        `mapstructure:"http_addr"`
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
	Debug     bool   `mapstructure:"debug"`
}

// validate is the shared validator instance for settings validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use config key names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("pow2", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n > 0 && n&(n-1) == 0
	})
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/ultrasonic/
func Init() error {
	setDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("output_device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("buffer_size", 512)
	viper.SetDefault("overlap_pct", 0)

	viper.SetDefault("listen.fft_size", 2048)
	viper.SetDefault("listen.min_frequency", 17000)
	viper.SetDefault("listen.threshold", 10)
	viper.SetDefault("listen.window", "none")
	viper.SetDefault("listen.debounce_mode", "timer")
	viper.SetDefault("listen.hold", 1500*time.Millisecond)
	viper.SetDefault("listen.silence", 4*time.Second)

	viper.SetDefault("beacon.fft_size", 4096)
	viper.SetDefault("beacon.target_frequency", 19000)
	viper.SetDefault("beacon.threshold", 100)
	viper.SetDefault("beacon.window", "none")
	viper.SetDefault("beacon.debounce_mode", "silence")
	viper.SetDefault("beacon.hold", 1500*time.Millisecond)
	viper.SetDefault("beacon.silence", 4*time.Second)
	viper.SetDefault("beacon.emit_frequency", 19000)
	viper.SetDefault("beacon.amplitude", 0.8)

	viper.SetDefault("recording.enabled", true)
	viper.SetDefault("recording.dir", "recordings")

	viper.SetDefault("notify.title", "")
	viper.SetDefault("notify.body", "")
	viper.SetDefault("notify.webhook_url", "")

	viper.SetDefault("s3.endpoint", "")
	viper.SetDefault("s3.bucket", "")
	viper.SetDefault("s3.access_key_id", "")
	viper.SetDefault("s3.secret_access_key", "")
	viper.SetDefault("s3.prefix", "recordings")

	viper.SetDefault("http_addr", ":9090")
	viper.SetDefault("tick_interval", 100*time.Millisecond)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("debug", false)
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				errs = append(errs, fmt.Errorf("%s %s, got %v", fieldKey(e), formatValidationMessage(e), e.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	// Nyquist checks: every frequency must be below half the sample rate
	nyquist := s.SampleRate / 2
	for _, f := range []struct {
		key string
		hz  float64
	}{
		{"listen.min_frequency", s.Listen.MinFrequency},
		{"beacon.target_frequency", s.Beacon.TargetFrequency},
		{"beacon.emit_frequency", s.Beacon.EmitFrequency},
	} {
		if f.hz >= nyquist {
			errs = append(errs, fmt.Errorf("%s (%v Hz) must be less than Nyquist frequency (%v Hz)", f.key, f.hz, nyquist))
		}
	}

	// The selected debounce mode needs its duration
	if err := s.ListenDebounce().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if err := s.BeaconDebounce().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("beacon: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// fieldKey turns a validator namespace like Settings.listen.fft_size into
// the config key listen.fft_size.
func fieldKey(e validator.FieldError) string {
	ns := strings.ReplaceAll(e.Namespace(), ".DebounceSettings", "")
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "pow2":
		return "must be a power of 2"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
