// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ColonelBlimp/ultrasonic/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ultrasonic",
	Short: "Ultrasonic consent beacon and tone detector",
	Long: `Detects a near-ultrasonic tone in microphone input, records audio while
the tone is present, and raises a consent notification when it goes away.
The beacon command also emits the tone so nearby devices can detect it.`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "capture device index (-1 for default)")
	rootCmd.PersistentFlags().IntP("output-device", "o", -1, "playback device index (-1 for default)")
	rootCmd.PersistentFlags().StringP("http-addr", "a", ":9090", "status and metrics listen address (empty to disable)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("output_device_index", rootCmd.PersistentFlags().Lookup("output-device"))
	viper.BindPFlag("http_addr", rootCmd.PersistentFlags().Lookup("http-addr"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from settings. debug forces the
// debug level.
func newLogger(w io.Writer, s *config.Settings) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if s.Debug {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadSettings reads validated settings and installs the default logger.
func loadSettings() (*config.Settings, *slog.Logger, error) {
	s, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(os.Stderr, s)
	slog.SetDefault(logger)
	return s, logger, nil
}
