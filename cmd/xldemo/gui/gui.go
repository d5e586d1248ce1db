package gui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	flayout "fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/roffe/goxl"
	"github.com/roffe/goxl/pkg/vxlapi"
	sdialog "github.com/sqweek/dialog"
)

const opTimeout = 10 * time.Second

type mainWindow struct {
	app    fyne.App
	window fyne.Window
	cfg    *goxl.Config

	session *goxl.Session

	log           *widget.List
	channelList   *widget.Select
	idEntry       *widget.Entry
	dataEntry     *widget.Entry
	initBTN       *widget.Button
	disconnectBTN *widget.Button
	sendBTN       *widget.Button
	listenBTN     *widget.Button
	stopBTN       *widget.Button

	busy sync.WaitGroup

	mu         sync.Mutex
	logData    []string
	channels   []vxlapi.ChannelConfig
	configured bool
}

// Run shows the demo window and blocks until it is closed or ctx is done.
func Run(ctx context.Context, cfg *goxl.Config) {
	a := app.NewWithID("com.github.roffe.goxl.xldemo")
	w := a.NewWindow("XL Driver Demo")
	w.Resize(fyne.NewSize(900, 500))
	mw := newMainWindow(a, w, cfg)

	drv, release, err := goxl.LoadDriver(cfg)
	if err != nil {
		mw.output(err.Error())
		mw.disableButtons()
		mw.channelList.Disable()
		sdialog.Message("%s", err.Error()).Title("error").Error()
	} else {
		defer release()
		mw.session = goxl.NewSession(ctx, drv, cfg)
		defer mw.session.Close()
		go mw.events(mw.session.Events())
		go mw.configure()
	}

	go func() {
		<-ctx.Done()
		w.Close()
	}()

	w.ShowAndRun()
}

func newMainWindow(a fyne.App, w fyne.Window, cfg *goxl.Config) *mainWindow {
	mw := &mainWindow{
		app:    a,
		window: w,
		cfg:    cfg,
	}
	mw.log = widget.NewList(
		func() int {
			mw.mu.Lock()
			defer mw.mu.Unlock()
			return len(mw.logData)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("template")
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			mw.mu.Lock()
			defer mw.mu.Unlock()
			if i < len(mw.logData) {
				o.(*widget.Label).SetText(mw.logData[i])
			}
		},
	)

	mw.initBTN = widget.NewButton("Initialize", mw.initialize)
	mw.disconnectBTN = widget.NewButton("Disconnect", mw.disconnect)
	mw.sendBTN = widget.NewButton("Send", mw.send)
	mw.listenBTN = widget.NewButton("Start listen", mw.startListen)
	mw.stopBTN = widget.NewButton("Stop listen", mw.stopListen)

	mw.idEntry = widget.NewEntry()
	mw.idEntry.SetPlaceHolder("ID (hex), e.g. 123")
	mw.dataEntry = widget.NewEntry()
	mw.dataEntry.SetPlaceHolder("Data (hex), e.g. DE AD BE EF")

	mw.channelList = widget.NewSelect(nil, mw.selectChannel)
	mw.channelList.PlaceHolder = "Select Channel"

	left := container.New(flayout.NewMaxLayout(), mw.log)
	right := container.NewVBox(
		mw.channelList,
		mw.initBTN,
		mw.disconnectBTN,
		widget.NewSeparator(),
		widget.NewLabel("Send"),
		mw.idEntry,
		mw.dataEntry,
		mw.sendBTN,
		widget.NewSeparator(),
		mw.listenBTN,
		mw.stopBTN,
	)

	split := container.NewHSplit(left, right)
	split.Offset = 0.7
	w.SetContent(split)
	return mw
}

func (mw *mainWindow) output(s string) {
	text := ""
	if s != "" {
		text = fmt.Sprintf("%s - %s", time.Now().Format("15:04:05.000"), s)
	}
	mw.mu.Lock()
	mw.logData = append(mw.logData, text)
	mw.mu.Unlock()
	mw.log.Refresh()
	mw.log.ScrollToBottom()
}

func (mw *mainWindow) events(evts <-chan goxl.Event) {
	for e := range evts {
		goxl.LogEvent(e, mw.cfg.Debug)
		if e.Type == goxl.EventTypeDebug && !mw.cfg.Debug {
			continue
		}
		if e.Type == goxl.EventTypeError {
			mw.output("ERROR: " + e.Details)
			continue
		}
		mw.output(e.Details)
	}
}

// do runs fn on its own goroutine with the buttons disabled.
func (mw *mainWindow) do(fn func(ctx context.Context)) {
	mw.disableButtons()
	mw.busy.Add(1)
	go func() {
		defer mw.busy.Done()
		defer mw.enableButtons()
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (mw *mainWindow) configure() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	mw.configureCtx(ctx)
}

func (mw *mainWindow) configureCtx(ctx context.Context) bool {
	dc, err := mw.session.Configure(ctx)
	if dc != nil {
		mw.setChannels(dc.Channels)
	}
	if err != nil && !errors.Is(err, goxl.ErrChannelNotConfigured) {
		if !goxl.IsRecoverable(err) {
			sdialog.Message("%s", err.Error()).Title("error").Error()
		}
		return false
	}
	mw.mu.Lock()
	mw.configured = true
	mw.mu.Unlock()
	if b, err := mw.session.Binding(ctx); err == nil {
		mw.showBinding(b)
	}
	return true
}

func (mw *mainWindow) setChannels(channels []vxlapi.ChannelConfig) {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}
	mw.mu.Lock()
	mw.channels = channels
	mw.mu.Unlock()
	mw.channelList.Options = names
	mw.channelList.Refresh()
}

// showBinding selects b in the channel list without triggering a rebind.
// An unknown or unset binding clears the selection.
func (mw *mainWindow) showBinding(b vxlapi.Binding) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.channelList.Selected = ""
	if b.Configured() {
		for _, ch := range mw.channels {
			if ch.Binding() == b {
				mw.channelList.Selected = ch.Name
				break
			}
		}
	}
	mw.channelList.Refresh()
}

func (mw *mainWindow) selectChannel(name string) {
	idx := mw.channelList.SelectedIndex()
	mw.mu.Lock()
	if idx < 0 || idx >= len(mw.channels) {
		mw.mu.Unlock()
		return
	}
	ch := mw.channels[idx]
	mw.mu.Unlock()
	mw.output(fmt.Sprintf("Selected %s: hw type %s, hw index %d, hw channel %d", name, ch.HwType, ch.HwIndex, ch.HwChannel))
	mw.do(func(ctx context.Context) {
		if _, err := mw.session.Bind(ctx, ch.Binding()); err != nil {
			log.Println(err)
			// the driver kept the old binding
			b, _ := mw.session.Binding(ctx)
			mw.showBinding(b)
		}
	})
}

func (mw *mainWindow) initialize() {
	mw.do(func(ctx context.Context) {
		mw.mu.Lock()
		configured := mw.configured
		mw.mu.Unlock()
		if !configured && !mw.configureCtx(ctx) {
			return
		}
		mw.session.Connect(ctx)
	})
}

func (mw *mainWindow) disconnect() {
	mw.do(func(ctx context.Context) {
		mw.session.Disconnect(ctx)
	})
}

func (mw *mainWindow) send() {
	id, data := mw.idEntry.Text, mw.dataEntry.Text
	mw.do(func(ctx context.Context) {
		mw.session.SendString(ctx, id, data)
	})
}

func (mw *mainWindow) startListen() {
	mw.do(func(ctx context.Context) {
		mw.session.StartListen(ctx)
	})
}

func (mw *mainWindow) stopListen() {
	mw.do(func(ctx context.Context) {
		mw.session.StopListen(ctx)
	})
}

func (mw *mainWindow) disableButtons() {
	mw.initBTN.Disable()
	mw.disconnectBTN.Disable()
	mw.sendBTN.Disable()
	mw.listenBTN.Disable()
	mw.stopBTN.Disable()
}

func (mw *mainWindow) enableButtons() {
	mw.initBTN.Enable()
	mw.disconnectBTN.Enable()
	mw.sendBTN.Enable()
	mw.listenBTN.Enable()
	mw.stopBTN.Enable()
}
