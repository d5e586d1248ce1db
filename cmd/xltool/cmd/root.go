package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/roffe/goxl"
	"github.com/spf13/cobra"
)

var (
	cfg      *goxl.Config
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:          "xltool",
	Short:        "Vector XL CAN command line tool",
	Long:         `List, bind and use Vector XL application channels from the terminal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = goxl.ConfigFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		closeLog = goxl.SetupLogging(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	goxl.AddFlags(rootCmd.PersistentFlags())
}

type session struct {
	*goxl.Session
	release func() error
	done    chan struct{}
}

// openSession loads the driver, starts a session and runs the configuration.
// Every session event is passed to handler. When connect is set the port is
// opened as well.
func openSession(ctx context.Context, connect bool, handler func(goxl.Event)) (*session, error) {
	drv, release, err := goxl.LoadDriver(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{
		Session: goxl.NewSession(ctx, drv, cfg),
		release: release,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for e := range s.Events() {
			handler(e)
		}
	}()
	if _, err := s.Configure(ctx); err != nil {
		if connect || !errors.Is(err, goxl.ErrChannelNotConfigured) {
			s.Close()
			return nil, err
		}
	}
	if connect {
		if err := s.Connect(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close shuts the session down and waits for the remaining events.
func (s *session) Close() error {
	err := s.Session.Close()
	<-s.done
	if rerr := s.release(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// logEvents writes events to the standard logger.
func logEvents(e goxl.Event) {
	goxl.LogEvent(e, cfg.Debug)
}

// quietEvents only reports warnings and errors.
func quietEvents(e goxl.Event) {
	if e.Type == goxl.EventTypeError || e.Type == goxl.EventTypeWarning || cfg.Debug {
		goxl.LogEvent(e, cfg.Debug)
	}
}

func printFrame(f *goxl.Frame) {
	fmt.Fprintln(color.Output, f.ColorString())
}
