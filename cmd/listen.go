package cmd

import (
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record while any strong energy is present above the band edge",
	Long: `Watches every bin from listen.min_frequency up to Nyquist. A single bin
above listen.threshold turns the signal on; it turns off per the configured
debounce mode. Recording runs while the signal is on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := loadSettings()
		if err != nil {
			return err
		}

		band, err := dsp.NewBandDetector(s.ListenBand())
		if err != nil {
			return err
		}
		logger.Info("listening",
			"min_frequency", s.Listen.MinFrequency,
			"start_bin", band.StartBin(),
			"fft_size", s.Listen.FFTSize,
			"debounce", s.Listen.DebounceMode)

		return run(cmd.Context(), s, logger, detectorSetup{
			mode:     "listen",
			analyzer: s.ListenAnalyzer(),
			decider:  band,
			debounce: s.ListenDebounce(),
		})
	},
}

func init() {
	listenCmd.Flags().Float64P("min-frequency", "m", 17000, "lower edge of the watched band in Hz")
	listenCmd.Flags().Float64P("threshold", "t", 10, "bin magnitude that must be exceeded")
	viper.BindPFlag("listen.min_frequency", listenCmd.Flags().Lookup("min-frequency"))
	viper.BindPFlag("listen.threshold", listenCmd.Flags().Lookup("threshold"))

	rootCmd.AddCommand(listenCmd)
}
