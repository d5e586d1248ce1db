package main

import (
	"context"
	"log"
	"os"

	"github.com/roffe/goxl"
	"github.com/roffe/goxl/cmd/xldemo/gui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "xldemo",
	Short:        "Vector XL CAN demo window",
	Long:         `Opens the XL driver, binds an application channel and sends and receives CAN frames`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := goxl.ConfigFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		closeLog := goxl.SetupLogging(cfg)
		defer closeLog()
		gui.Run(cmd.Context(), cfg)
		return nil
	},
}

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)
	goxl.AddFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
