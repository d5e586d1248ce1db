package cmd

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/roffe/goxl"
	"github.com/roffe/goxl/cmd/xltool/pkg/ui"
	"github.com/spf13/cobra"
)

const maxBufferedLines = 50000

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor the CANbus for frames",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		g, err := gocui.NewGui(gocui.OutputNormal)
		if err != nil {
			return err
		}
		g.Cursor = true
		defer g.Close()

		m := &monitor{
			g: g,
			filter: &ui.Input{
				Name:      "filter",
				Title:     "Filter",
				X:         0,
				Y:         7,
				W:         25,
				MaxLength: 60,
				Allowed:   "0123456789abcdefABCDEFxX, ",
			},
		}
		g.SetManagerFunc(m.layout)
		if err := m.keybindings(); err != nil {
			return err
		}

		s, err := openSession(ctx, true, m.handle)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.StartListen(ctx); err != nil {
			return err
		}

		go func() {
			<-ctx.Done()
			g.Update(func(g *gocui.Gui) error { return gocui.ErrQuit })
		}()

		if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

type monitor struct {
	g      *gocui.Gui
	filter *ui.Input

	mu      sync.Mutex
	filters map[uint32]bool

	frames    int64
	shown     int64
	buffLines int64
}

func (m *monitor) inFilters(identifier uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.filters) == 0 {
		return true
	}
	return m.filters[identifier]
}

// parseFilters reads a comma separated list of hex identifiers.
func parseFilters(text string) (map[uint32]bool, error) {
	out := make(map[uint32]bool)
	for _, p := range strings.Split(text, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, _, err := goxl.ParseIdentifier(p)
		if err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, nil
}

func (m *monitor) handle(e goxl.Event) {
	if f := e.Frame; f != nil {
		atomic.AddInt64(&m.frames, 1)
		if !m.inFilters(f.Identifier) || atomic.LoadInt64(&m.buffLines) > maxBufferedLines {
			m.g.Update(m.updateInfo)
			return
		}
		atomic.AddInt64(&m.shown, 1)
		line := fmt.Sprintf(" %s || %s\n", e.Time.Format("15:04:05.00000"), f.String())
		m.g.Update(func(g *gocui.Gui) error {
			packets, err := g.View("packets")
			if err != nil {
				return err
			}
			fmt.Fprint(packets, line)
			atomic.AddInt64(&m.buffLines, 1)
			return m.updateInfo(g)
		})
		return
	}
	// the terminal belongs to gocui, only problems are shown
	if e.Type != goxl.EventTypeError && e.Type != goxl.EventTypeWarning {
		return
	}
	text := e.String()
	m.g.Update(func(g *gocui.Gui) error {
		v, err := g.View("errors")
		if err != nil {
			return err
		}
		fmt.Fprintln(v, text)
		return nil
	})
}

func (m *monitor) updateInfo(g *gocui.Gui) error {
	info, err := g.View("info")
	if err != nil {
		return err
	}
	info.Clear()
	fmt.Fprintf(info, "frames: %d\n", atomic.LoadInt64(&m.frames))
	fmt.Fprintf(info, "shown: %d\n", atomic.LoadInt64(&m.shown))
	fmt.Fprintf(info, "in buffer: %d\n", atomic.LoadInt64(&m.buffLines))
	fmt.Fprintf(info, "updated: %s\n", time.Now().Format("15:04:05"))
	return nil
}

func (m *monitor) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView("info", 0, 0, 25, 6); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Info"
		fmt.Fprintf(v, "%s channel %d\n", cfg.AppName, cfg.AppChannel)
	}

	if err := m.filter.Layout(g); err != nil {
		return err
	}

	if v, err := g.SetView("help", 0, 10, 25, maxY-11); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Wrap = true
		v.Title = "Help"
		fmt.Fprintln(v, "<Q, Ctrl-C> Quit")
		fmt.Fprintln(v, "<Space> Autoscroll")
		fmt.Fprintln(v, "<Ctrl-F> Set filter")
		fmt.Fprintln(v, "<C> Clear")
	}

	if v, err := g.SetView("errors", 0, maxY-10, 25, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Autoscroll = true
		v.Wrap = true
		v.Title = "Errors"
	}

	if v, err := g.SetView("packets", 26, 0, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.SelFgColor = gocui.ColorCyan
		v.Autoscroll = true
		v.Highlight = true
		v.Title = "Frame view"
		if _, err := g.SetCurrentView("packets"); err != nil {
			return err
		}
	}
	return nil
}

func (m *monitor) setFilter(g *gocui.Gui, v *gocui.View) error {
	filters, err := parseFilters(ui.Value(v))
	if ev, verr := g.View("errors"); verr == nil {
		if err != nil {
			fmt.Fprintln(ev, err)
		} else if len(filters) == 0 {
			fmt.Fprintln(ev, "filter cleared")
		} else {
			fmt.Fprintf(ev, "filter set, %d ids\n", len(filters))
		}
	}
	if err == nil {
		m.mu.Lock()
		m.filters = filters
		m.mu.Unlock()
	}
	_, serr := g.SetCurrentView("packets")
	return serr
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (m *monitor) keybindings() error {
	g := m.g
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("packets", 'q', gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("packets", gocui.KeyCtrlF, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			_, err := g.SetCurrentView("filter")
			return err
		}); err != nil {
		return err
	}
	if err := g.SetKeybinding("filter", gocui.KeyEnter, gocui.ModNone, m.setFilter); err != nil {
		return err
	}
	if err := g.SetKeybinding("packets", 'c', gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			atomic.StoreInt64(&m.buffLines, 0)
			v.Autoscroll = true
			v.Clear()
			v.SetOrigin(0, 0)
			return m.updateInfo(g)
		}); err != nil {
		return err
	}
	if err := g.SetKeybinding("packets", gocui.KeySpace, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			v.Autoscroll = !v.Autoscroll
			return nil
		}); err != nil {
		return err
	}
	moves := map[gocui.Key]int{
		gocui.KeyArrowUp:   -1,
		gocui.KeyArrowDown: 1,
		gocui.KeyPgup:      -10,
		gocui.KeyPgdn:      10,
	}
	for key, dy := range moves {
		dy := dy
		if err := g.SetKeybinding("packets", key, gocui.ModNone,
			func(g *gocui.Gui, v *gocui.View) error {
				v.Autoscroll = false
				v.MoveCursor(0, dy, false)
				return nil
			}); err != nil {
			return err
		}
	}
	return nil
}
