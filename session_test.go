package goxl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roffe/goxl/pkg/vxlapi"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Virtual = true
	cfg.WaitTimeout = 20 * time.Millisecond
	cfg.SendDelay = time.Millisecond
	return cfg
}

func newTestSession(t *testing.T, v *Virtual, cfg *Config) *Session {
	t.Helper()
	s := NewSession(context.Background(), v, cfg)
	t.Cleanup(func() { s.Close() })
	return s
}

// waitFor reads events until one contains substr.
func waitFor(t *testing.T, s *Session, substr string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatalf("event channel closed while waiting for %q", substr)
			}
			if strings.Contains(e.Details, substr) {
				return e
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %q", substr)
		}
	}
}

func connected(t *testing.T, v *Virtual, cfg *Config) *Session {
	t.Helper()
	s := newTestSession(t, v, cfg)
	ctx := context.Background()
	if _, err := s.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := newTestSession(t, v, testConfig())

	dc, err := s.Configure(ctx)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if len(dc.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(dc.Channels))
	}
	waitFor(t, s, "Open driver success!")
	waitFor(t, s, "Driver Version: 20.3.17")

	b, err := s.Binding(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b != dc.Channels[0].Binding() {
		t.Errorf("binding = %v, want %v", b, dc.Channels[0].Binding())
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, s, "Initialization Complete!")
	if !s.Connected(ctx) {
		t.Error("Connected() = false after Connect")
	}

	if err := s.StartListen(ctx); err != nil {
		t.Fatalf("StartListen: %v", err)
	}
	waitFor(t, s, "Listening...")
	if err := v.Inject(0x1, NewFrame(0x123, []byte{0xDE, 0xAD}, Incoming)); err != nil {
		t.Fatal(err)
	}
	e := waitFor(t, s, "Received Message ID")
	if want := "Received Message ID: 0x123; Received message: DE AD"; e.Details != want {
		t.Errorf("got %q, want %q", e.Details, want)
	}
	if e.Frame == nil || e.Frame.Identifier != 0x123 || len(e.Frame.Data) != 2 {
		t.Errorf("frame = %+v", e.Frame)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := v.OpenPorts(); n != 0 {
		t.Errorf("%d ports left open", n)
	}
	if n := v.Calls("xlDeactivateChannel"); n != 1 {
		t.Errorf("xlDeactivateChannel called %d times", n)
	}
	if n := v.Calls("xlCloseDriver"); n != 1 {
		t.Errorf("xlCloseDriver called %d times", n)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
	for range s.Events() {
	}
}

func TestSessionSequencing(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := newTestSession(t, v, testConfig())

	if err := s.Connect(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Connect before Configure = %v", err)
	}
	if _, err := s.Bind(ctx, vxlapi.Binding{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Bind before Configure = %v", err)
	}
	if err := s.SendString(ctx, "123", "00"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Connect = %v", err)
	}
	if err := s.StartListen(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("StartListen before Connect = %v", err)
	}
	if err := s.StopListen(ctx); err != nil {
		t.Errorf("StopListen when idle = %v", err)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Errorf("Disconnect when idle = %v", err)
	}
	if n := v.Calls("xlOpenPort") + v.Calls("xlCanTransmit"); n != 0 {
		t.Errorf("driver called %d times", n)
	}
	if Classify(ErrNotConnected) != ClassConfiguration {
		t.Error("sequencing error not classified as configuration")
	}
}

func TestConnectTwice(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	if err := s.Connect(ctx); !errors.Is(err, ErrConnected) {
		t.Fatalf("second Connect = %v, want ErrConnected", err)
	}
	if n := v.Calls("xlOpenPort"); n != 1 {
		t.Errorf("xlOpenPort called %d times", n)
	}
	if _, err := s.Bind(ctx, vxlapi.Binding{HwType: vxlapi.HWTYPE_VIRTUAL, HwChannel: 1}); !errors.Is(err, ErrConnected) {
		t.Errorf("Bind while connected = %v, want ErrConnected", err)
	}
}

func TestConnectRollback(t *testing.T) {
	tests := []struct {
		fn         string
		closePorts int
	}{
		{"xlOpenPort", 0},
		{"xlSetNotification", 1},
		{"xlActivateChannel", 1},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			ctx := context.Background()
			v := NewVirtual()
			s := newTestSession(t, v, testConfig())
			if _, err := s.Configure(ctx); err != nil {
				t.Fatal(err)
			}
			v.Fail(tt.fn, vxlapi.ERR_WRONG_PARAMETER)
			err := s.Connect(ctx)
			if !errors.Is(err, vxlapi.ERR_WRONG_PARAMETER) {
				t.Fatalf("Connect = %v", err)
			}
			e := waitFor(t, s, tt.fn)
			if e.Type != EventTypeError {
				t.Errorf("failure logged as %s", e.Type)
			}
			if n := v.OpenPorts(); n != 0 {
				t.Errorf("%d ports left open", n)
			}
			if n := v.Calls("xlClosePort"); n != tt.closePorts {
				t.Errorf("xlClosePort called %d times, want %d", n, tt.closePorts)
			}
			if s.Connected(ctx) {
				t.Error("Connected() = true after failed Connect")
			}

			v.Fail(tt.fn, vxlapi.SUCCESS)
			if err := s.Connect(ctx); err != nil {
				t.Errorf("Connect after clearing failure: %v", err)
			}
		})
	}
}

func TestBindUnassigned(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := newTestSession(t, v, testConfig())
	if _, err := s.Configure(ctx); err != nil {
		t.Fatal(err)
	}
	b, err := s.Bind(ctx, vxlapi.Binding{})
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("Bind(none) = %v, want ErrChannelNotConfigured", err)
	}
	if b.Configured() {
		t.Errorf("binding = %v", b)
	}
	if err := s.Connect(ctx); !errors.Is(err, ErrChannelNotConfigured) {
		t.Errorf("Connect unbound = %v", err)
	}
	if n := v.Calls("xlOpenPort"); n != 0 {
		t.Errorf("xlOpenPort called %d times", n)
	}

	dc, err := s.Configure(ctx)
	if !errors.Is(err, ErrChannelNotConfigured) || dc == nil || len(dc.Channels) != 2 {
		t.Errorf("Configure unbound = %v, %v", dc, err)
	}

	if _, err := s.Bind(ctx, vxlapi.Binding{HwType: vxlapi.HWTYPE_VN1630}); !errors.Is(err, vxlapi.ERR_HW_NOT_PRESENT) {
		t.Errorf("Bind(missing hardware) = %v", err)
	}
	second := vxlapi.Binding{HwType: vxlapi.HWTYPE_VIRTUAL, HwChannel: 1}
	got, err := s.Bind(ctx, second)
	if err != nil || got != second {
		t.Fatalf("Bind = %v, %v", got, err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, s, "Channel mask: 0x2")
}

func TestSendString(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())

	tests := []struct {
		name    string
		id      string
		payload string
		wantErr bool
	}{
		{"standard", "123", "DE AD BE EF", false},
		{"prefixed", "0x7FF", "01", false},
		{"extended", "1FFFFFFF", "", false},
		{"bad id", "xyz", "00", true},
		{"id too large", "20000000", "00", true},
		{"odd payload", "123", "ABC", true},
		{"long payload", "123", "00 11 22 33 44 55 66 77 88", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := v.Calls("xlCanTransmit")
			err := s.SendString(ctx, tt.id, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendString(%q, %q) error = %v, wantErr %v", tt.id, tt.payload, err, tt.wantErr)
			}
			calls := v.Calls("xlCanTransmit") - before
			if tt.wantErr {
				if Classify(err) != ClassInput {
					t.Errorf("class = %s, want input", Classify(err))
				}
				if calls != 0 {
					t.Errorf("xlCanTransmit called %d times for bad input", calls)
				}
				return
			}
			if calls != 1 {
				t.Errorf("xlCanTransmit called %d times", calls)
			}
		})
	}
	waitFor(t, s, "Send ID: 0x123; Send message: DE AD BE EF")
}

func TestSendRetry(t *testing.T) {
	tests := []struct {
		name      string
		status    vxlapi.Status
		attempts  uint
		wantCalls int
	}{
		{"transient retried", vxlapi.ERR_QUEUE_IS_FULL, 3, 3},
		{"single attempt", vxlapi.ERR_QUEUE_IS_FULL, 1, 1},
		{"configuration not retried", vxlapi.ERR_INVALID_ACCESS, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVirtual()
			cfg := testConfig()
			cfg.SendAttempts = tt.attempts
			s := connected(t, v, cfg)
			v.Fail("xlCanTransmit", tt.status)
			err := s.Send(context.Background(), NewFrame(0x100, []byte{1}, Outgoing))
			if !errors.Is(err, tt.status) {
				t.Fatalf("Send = %v, want %s", err, tt.status)
			}
			if n := v.Calls("xlCanTransmit"); n != tt.wantCalls {
				t.Errorf("xlCanTransmit called %d times, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestStartListenTwice(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	if err := s.StartListen(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.StartListen(ctx); !errors.Is(err, ErrAlreadyListening) {
		t.Fatalf("second StartListen = %v", err)
	}
	if !s.Listening(ctx) {
		t.Error("Listening() = false")
	}
	if err := s.StopListen(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Listening(ctx) {
		t.Error("Listening() = true after Disconnect")
	}
	if n := v.OpenPorts(); n != 0 {
		t.Errorf("%d ports left open", n)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := s.StartListen(ctx); err != nil {
		t.Fatalf("listen after reconnect: %v", err)
	}
}

func TestTwoSessionsShareBus(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	tx := connected(t, v, testConfig())
	rxCfg := testConfig()
	rxCfg.AppChannel = 1
	rx := connected(t, v, rxCfg)
	if err := rx.StartListen(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, rx, "Listening...")
	if err := tx.SendString(ctx, "18DAF110", "0210C0"); err != nil {
		t.Fatal(err)
	}
	e := waitFor(t, rx, "Received Message ID")
	if e.Frame == nil || !e.Frame.Extended || e.Frame.Identifier != 0x18DAF110 {
		t.Fatalf("frame = %+v", e.Frame)
	}
	if e.Frame.HexData() != "02 10 C0" {
		t.Errorf("data = %q", e.Frame.HexData())
	}
	if e.Frame.Channel != 1 {
		t.Errorf("channel = %d, want 1", e.Frame.Channel)
	}
}

func TestConfigureFatal(t *testing.T) {
	v := NewVirtual()
	v.Fail("xlOpenDriver", vxlapi.ERR_DLL_NOT_FOUND)
	s := newTestSession(t, v, testConfig())
	_, err := s.Configure(context.Background())
	if err == nil {
		t.Fatal("Configure succeeded")
	}
	if IsRecoverable(err) {
		t.Errorf("%v reported as recoverable", err)
	}
	waitFor(t, s, "xlOpenDriver: XL_ERR_DLL_NOT_FOUND (203)")
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if n := v.Calls("xlCloseDriver"); n != 0 {
		t.Errorf("xlCloseDriver called %d times for a driver never opened", n)
	}
}

func TestCloseReportsErrors(t *testing.T) {
	v := NewVirtual()
	s := connected(t, v, testConfig())
	v.Fail("xlDeactivateChannel", vxlapi.ERR_INVALID_PORT)
	err := s.Close()
	if !errors.Is(err, vxlapi.ERR_INVALID_PORT) {
		t.Fatalf("Close = %v", err)
	}
	if n := v.Calls("xlClosePort"); n != 1 {
		t.Errorf("xlClosePort called %d times after failed deactivate", n)
	}
	if n := v.Calls("xlCloseDriver"); n != 1 {
		t.Errorf("xlCloseDriver called %d times", n)
	}
}

// collect reads events for d.
func collect(s *Session, d time.Duration) []Event {
	var out []Event
	timeout := time.After(d)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			return out
		}
	}
}

// buffered returns the events already queued without waiting.
func buffered(s *Session) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func waitStopped(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Listening(context.Background()) {
		if time.Now().After(deadline) {
			t.Fatal("listener still running")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func countDetails(events []Event, details string) int {
	n := 0
	for _, e := range events {
		if e.Details == details {
			n++
		}
	}
	return n
}

func TestListenHeartbeat(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	cfg := testConfig()
	s := connected(t, v, cfg)
	waitFor(t, s, "Initialization Complete!")

	if err := s.StartListen(ctx); err != nil {
		t.Fatal(err)
	}
	// one line at start plus one per wait timeout
	n := countDetails(collect(s, 10*cfg.WaitTimeout), "Listening...")
	if n < 5 || n > 12 {
		t.Errorf("got %d heartbeats in 10 wait timeouts", n)
	}

	if err := s.StopListen(ctx); err != nil {
		t.Fatal(err)
	}
	waitStopped(t, s)
	tail := buffered(s)
	after := 0
	stopped := false
	for _, e := range tail {
		if e.Details == "Stop listening" {
			stopped = true
			continue
		}
		if stopped && e.Details == "Listening..." {
			after++
		}
	}
	if !stopped {
		t.Error("no stop event")
	}
	if after > 1 {
		t.Errorf("%d heartbeats after stop, want at most one", after)
	}

	time.Sleep(5 * cfg.WaitTimeout)
	if late := buffered(s); len(late) != 0 {
		t.Errorf("%d events after the listener exited, first %q", len(late), late[0].Details)
	}
}

func TestListenDrainsQueue(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	for i := 0; i < 3; i++ {
		if err := v.Inject(0x1, NewFrame(0x100+uint32(i), []byte{byte(i)}, Incoming)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.StartListen(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		e := waitFor(t, s, "Received Message ID")
		if want := uint32(0x100 + i); e.Frame == nil || e.Frame.Identifier != want {
			t.Fatalf("frame %d = %+v, want id 0x%X", i, e.Frame, want)
		}
	}
	// the next heartbeat follows the drain
	waitFor(t, s, "Listening...")
	if n := v.Calls("xlReceive"); n != 4 {
		t.Errorf("xlReceive called %d times, want 3 frames and one empty read", n)
	}
	if n := v.Calls("WaitForSingleObject"); n < 2 {
		t.Errorf("WaitForSingleObject called %d times", n)
	}
}

func TestListenerStopsOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		fn    string
		check func(error) bool
	}{
		{"receive", "xlReceive", func(err error) bool { return errors.Is(err, vxlapi.ERR_INVALID_PORT) }},
		{"wait", "WaitForSingleObject", func(err error) bool { return errors.Is(err, ErrWaitFailed) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			v := NewVirtual()
			s := connected(t, v, testConfig())
			v.Fail(tt.fn, vxlapi.ERR_INVALID_PORT)
			if err := s.StartListen(ctx); err != nil {
				t.Fatal(err)
			}
			if err := v.Inject(0x1, NewFrame(0x123, []byte{1}, Incoming)); err != nil {
				t.Fatal(err)
			}
			waitStopped(t, s)

			var errs []Event
			for _, e := range buffered(s) {
				if e.Type == EventTypeError {
					errs = append(errs, e)
				}
			}
			if len(errs) != 1 {
				t.Fatalf("got %d error events, want 1: %v", len(errs), errs)
			}
			if !tt.check(errs[0].Err) {
				t.Errorf("error event = %v", errs[0].Err)
			}
			if !strings.Contains(errs[0].Details, tt.fn) {
				t.Errorf("error %q does not name %s", errs[0].Details, tt.fn)
			}
			if !s.Connected(ctx) {
				t.Error("port closed by a failing listener")
			}
		})
	}
}

func TestDrainWrongPort(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	waitFor(t, s, "Initialization Complete!")
	err := s.exec(ctx, func() error {
		return s.drain(s.st.port + 1)
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("drain = %v", err)
	}
	e := waitFor(t, s, "stopped")
	if e.Type != EventTypeError || !errors.Is(e.Err, ErrNotConnected) {
		t.Errorf("event = %+v", e)
	}
}

func TestSendAfterClose(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	isParseError := func(err error) bool {
		var pe *ParseError
		return errors.As(err, &pe)
	}
	tests := []struct {
		name    string
		id      string
		payload string
		check   func(error) bool
	}{
		{"bad identifier", "zz", "00", isParseError},
		{"bad payload", "123", "0", isParseError},
		{"valid", "123", "00", func(err error) bool { return errors.Is(err, ErrClosed) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SendString(ctx, tt.id, tt.payload); !tt.check(err) {
				t.Errorf("SendString(%q, %q) = %v", tt.id, tt.payload, err)
			}
		})
	}
	if err := s.Send(ctx, &Frame{Identifier: 0x800}); !isParseError(err) {
		t.Errorf("Send invalid frame = %v", err)
	}
}

func TestSendDuringClose(t *testing.T) {
	ctx := context.Background()
	v := NewVirtual()
	s := connected(t, v, testConfig())
	go func() {
		for range s.Events() {
		}
	}()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.SendString(ctx, "zz", "00")
				s.SendString(ctx, "123", "00")
			}
		}()
	}
	s.Close()
	wg.Wait()
}
