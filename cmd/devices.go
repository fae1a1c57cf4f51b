package cmd

import (
	"fmt"
	"io"

	"github.com/ColonelBlimp/ultrasonic/internal/audio"
	"github.com/gen2brain/malgo"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture and playback devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		capture, err := audio.ListDevices(malgo.Capture)
		if err != nil {
			return err
		}
		playback, err := audio.ListDevices(malgo.Playback)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printDevices(out, "Capture devices (--device)", capture)
		fmt.Fprintln(out)
		printDevices(out, "Playback devices (--output-device)", playback)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func printDevices(w io.Writer, title string, devices []audio.Device) {
	fmt.Fprintln(w, title+":")
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", d.Index, d.Name, marker)
	}
}
