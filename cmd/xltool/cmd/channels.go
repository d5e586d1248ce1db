package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/roffe/goxl"
	"github.com/roffe/goxl/pkg/vxlapi"
	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the channels known to the driver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false, quietEvents)
		if err != nil {
			return err
		}
		defer s.Close()

		channels, err := s.Channels(ctx)
		if err != nil {
			return err
		}
		bound, err := s.Binding(ctx)
		if err != nil && !errors.Is(err, goxl.ErrChannelNotConfigured) {
			return err
		}
		printChannels(channels, bound)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func printChannels(channels []vxlapi.ChannelConfig, bound vxlapi.Binding) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\t#\tNAME\tHW TYPE\tINDEX\tCHANNEL\tMASK\tBITRATE\tON BUS\tTRANSCEIVER\tSERIAL")
	for i, ch := range channels {
		mark := ""
		if bound.Configured() && ch.Binding() == bound {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t0x%X\t%d\t%t\t%s\t%d\n",
			mark, i, ch.Name, ch.HwType, ch.HwIndex, ch.HwChannel,
			uint64(ch.ChannelMask), ch.Bitrate, ch.IsOnBus, ch.TransceiverName, ch.SerialNumber)
	}
	w.Flush()
}
