package cmd

import (
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var beaconCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Emit the consent tone and record while it is heard",
	Long: `Plays a continuous tone at beacon.emit_frequency on the output device and
watches the bin nearest beacon.target_frequency. Recording starts when that
bin exceeds beacon.threshold and stops once it has been quiet for the
configured period; a consent notification follows each recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, logger, err := loadSettings()
		if err != nil {
			return err
		}

		bin, err := dsp.NewBinDetector(s.BeaconBin())
		if err != nil {
			return err
		}

		setup := detectorSetup{
			mode:     "beacon",
			analyzer: s.BeaconAnalyzer(),
			decider:  bin,
			debounce: s.BeaconDebounce(),
		}
		emit, _ := cmd.Flags().GetBool("emit")
		if emit {
			tone := s.Tone()
			setup.tone = &tone
		}

		logger.Info("beacon",
			"target_frequency", s.Beacon.TargetFrequency,
			"bin", bin.Bin(),
			"fft_size", s.Beacon.FFTSize,
			"emit", emit,
			"emit_frequency", s.Beacon.EmitFrequency)

		return run(cmd.Context(), s, logger, setup)
	},
}

func init() {
	beaconCmd.Flags().Float64P("frequency", "f", 19000, "target and emitted tone frequency in Hz")
	beaconCmd.Flags().Float64P("threshold", "t", 100, "target bin magnitude that must be exceeded")
	beaconCmd.Flags().Bool("emit", true, "play the tone on the output device")
	viper.BindPFlag("beacon.target_frequency", beaconCmd.Flags().Lookup("frequency"))
	viper.BindPFlag("beacon.emit_frequency", beaconCmd.Flags().Lookup("frequency"))
	viper.BindPFlag("beacon.threshold", beaconCmd.Flags().Lookup("threshold"))

	rootCmd.AddCommand(beaconCmd)
}
