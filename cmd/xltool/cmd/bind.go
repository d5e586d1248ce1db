package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/roffe/goxl"
	"github.com/roffe/goxl/pkg/vxlapi"
	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:   "bind [channel]",
	Short: "Assign the application channel to a hardware channel",
	Long: `Assign the application channel to a hardware channel.

The channel is given by its index in the channels list or by name. Without an
argument the channel is picked interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false, logEvents)
		if err != nil {
			return err
		}
		defer s.Close()

		channels, err := s.Channels(ctx)
		if err != nil {
			return err
		}

		var target vxlapi.Binding
		unbind, _ := cmd.Flags().GetBool("none")
		switch {
		case unbind:
		case len(args) == 1:
			ch, err := findChannel(channels, args[0])
			if err != nil {
				return err
			}
			target = ch.Binding()
		default:
			ch, err := pickChannel(channels)
			if err != nil {
				return err
			}
			target = ch.Binding()
		}

		b, err := s.Bind(ctx, target)
		if err != nil && !(unbind && errors.Is(err, goxl.ErrChannelNotConfigured)) {
			return err
		}
		fmt.Printf("%s channel %d -> %s\n", cfg.AppName, cfg.AppChannel, b)
		return nil
	},
}

func init() {
	bindCmd.Flags().Bool("none", false, "remove the assignment")
	rootCmd.AddCommand(bindCmd)
}

func findChannel(channels []vxlapi.ChannelConfig, arg string) (vxlapi.ChannelConfig, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 0 || i >= len(channels) {
			return vxlapi.ChannelConfig{}, fmt.Errorf("channel index %d out of range, %d channels", i, len(channels))
		}
		return channels[i], nil
	}
	for _, ch := range channels {
		if ch.Name == arg {
			return ch, nil
		}
	}
	return vxlapi.ChannelConfig{}, fmt.Errorf("no channel named %q", arg)
}

func pickChannel(channels []vxlapi.ChannelConfig) (vxlapi.ChannelConfig, error) {
	if len(channels) == 0 {
		return vxlapi.ChannelConfig{}, errors.New("the driver reports no channels")
	}
	items := make([]string, len(channels))
	for i, ch := range channels {
		items[i] = ch.String()
	}
	prompt := promptui.Select{
		Label:    "Select channel",
		HideHelp: true,
		Items:    items,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return vxlapi.ChannelConfig{}, fmt.Errorf("prompt failed: %w", err)
	}
	return channels[idx], nil
}
