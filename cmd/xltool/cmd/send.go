package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/roffe/goxl"
	"github.com/roffe/goxl/pkg/bar"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <id> [payload...]",
	Short: "Transmit a CAN frame",
	Long: `Transmit a CAN frame on the bound channel.

The identifier is hexadecimal with an optional 0x prefix, identifiers above
7FF are sent as extended frames. The payload is up to 8 hex bytes, spaces are
ignored: xltool send 123 DE AD BE EF`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repeat, _ := cmd.Flags().GetInt("repeat")
		interval, _ := cmd.Flags().GetDuration("interval")
		if repeat < 1 {
			return fmt.Errorf("repeat must be at least 1")
		}
		if repeat > 1 && interval <= 0 {
			return fmt.Errorf("interval must be positive")
		}

		id, payload := args[0], strings.Join(args[1:], " ")
		// validate before touching the driver
		if _, _, err := goxl.ParseIdentifier(id); err != nil {
			return err
		}
		if _, err := goxl.ParsePayload(payload); err != nil {
			return err
		}

		handler := logEvents
		if repeat > 1 {
			handler = quietEvents
		}
		s, err := openSession(ctx, true, handler)
		if err != nil {
			return err
		}
		defer s.Close()

		if repeat == 1 {
			return s.SendString(ctx, id, payload)
		}

		pb := bar.New(repeat, "sending")
		t := time.NewTicker(interval)
		defer t.Stop()
		for i := 0; i < repeat; i++ {
			if err := s.SendString(ctx, id, payload); err != nil {
				return err
			}
			pb.Add(1)
			if i == repeat-1 {
				break
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().IntP("repeat", "n", 1, "number of frames to send")
	sendCmd.Flags().DurationP("interval", "i", 100*time.Millisecond, "time between repeated frames")
	rootCmd.AddCommand(sendCmd)
}
