package gui

import (
	"context"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/roffe/goxl"
)

func testWindow(t *testing.T) *mainWindow {
	t.Helper()
	cfg := goxl.DefaultConfig()
	cfg.Virtual = true
	cfg.WaitTimeout = 20 * time.Millisecond
	a := test.NewApp()
	t.Cleanup(a.Quit)
	mw := newMainWindow(a, a.NewWindow("test"), cfg)
	mw.session = goxl.NewSession(context.Background(), goxl.NewVirtual(), cfg)
	t.Cleanup(func() { mw.session.Close() })
	go func() {
		for range mw.session.Events() {
		}
	}()
	return mw
}

func (mw *mainWindow) selected() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.channelList.Selected
}

func waitSelected(t *testing.T, mw *mainWindow, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for mw.selected() != want {
		if time.Now().After(deadline) {
			t.Fatalf("selected = %q, want %q", mw.selected(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSelectChannel(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		want    string
	}{
		{"rebinds when offline", false, "Virtual Channel 2"},
		{"reverts while connected", true, "Virtual Channel 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mw := testWindow(t)
			if !mw.configureCtx(ctx) {
				t.Fatal("configure failed")
			}
			waitSelected(t, mw, "Virtual Channel 1")
			if tt.connect {
				if err := mw.session.Connect(ctx); err != nil {
					t.Fatal(err)
				}
			}
			mw.channelList.SetSelected("Virtual Channel 2")
			mw.busy.Wait()
			waitSelected(t, mw, tt.want)

			b, err := mw.session.Binding(ctx)
			if err != nil {
				t.Fatal(err)
			}
			channels, err := mw.session.Channels(ctx)
			if err != nil {
				t.Fatal(err)
			}
			var bound string
			for _, ch := range channels {
				if ch.Binding() == b {
					bound = ch.Name
				}
			}
			if bound != tt.want {
				t.Errorf("driver binding = %q, want %q", bound, tt.want)
			}
		})
	}
}
