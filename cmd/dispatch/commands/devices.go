package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"emergency-dispatch-service/internal/service/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListDevices()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOST API\tIN\tOUT\tRATE\tDEFAULT")
		for _, d := range devices {
			def := ""
			switch {
			case d.DefaultInput && d.DefaultOutput:
				def = "in,out"
			case d.DefaultInput:
				def = "in"
			case d.DefaultOutput:
				def = "out"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f\t%s\n",
				d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, def)
		}
		return w.Flush()
	},
}
