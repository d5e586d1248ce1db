package cmd

import (
	"context"

	"github.com/roffe/goxl"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print received frames until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		s, err := openSession(ctx, true, func(e goxl.Event) {
			if e.Frame != nil {
				printFrame(e.Frame)
				return
			}
			if e.Details == "Listening..." && !cfg.Debug {
				return
			}
			logEvents(e)
		})
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.StartListen(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	listenCmd.Flags().Duration("duration", 0, "stop after this long, 0 runs until Ctrl-C")
	rootCmd.AddCommand(listenCmd)
}
