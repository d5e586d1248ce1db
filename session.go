package goxl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/goxl/pkg/vxlapi"
	"golang.org/x/sync/errgroup"
)

const eventBufferSize = 1024

// Session drives one application channel through the XL driver lifecycle.
// All driver handles are owned by a single goroutine; the exported methods
// hand work to it and wait for the result, so they are safe to call from any
// goroutine. Progress and failures are published on Events.
type Session struct {
	cfg *Config
	drv Driver

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	reqs   chan request
	halted chan struct{}

	// evMu guards evts against publishing after close
	evMu       sync.RWMutex
	evts       chan Event
	evtsClosed bool

	closeOnce sync.Once
	closeErr  error

	// owned by the run goroutine
	st state
}

type state struct {
	driverOpen bool
	config     *vxlapi.DriverConfig
	binding    vxlapi.Binding
	connected  bool
	access     vxlapi.Access
	permission vxlapi.Access
	port       vxlapi.PortHandle
	note       vxlapi.Notification
	listener   *listener
}

type request struct {
	fn  func() error
	res chan error
}

type listener struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession starts the session goroutine. Nothing is sent to the driver
// until Configure is called. The session stops when ctx is cancelled or
// Close is called.
func NewSession(ctx context.Context, drv Driver, cfg *Config) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(ctx)
	eg, gctx := errgroup.WithContext(ctx)
	s := &Session{
		cfg:    cfg,
		drv:    drv,
		ctx:    gctx,
		cancel: cancel,
		eg:     eg,
		reqs:   make(chan request),
		evts:   make(chan Event, eventBufferSize),
		halted: make(chan struct{}),
		st:     state{port: vxlapi.INVALID_PORTHANDLE},
	}
	eg.Go(func() error {
		return s.run(gctx)
	})
	return s
}

// Events returns the session log. The channel is closed once the session has
// shut down.
func (s *Session) Events() <-chan Event {
	return s.evts
}

func (s *Session) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case r := <-s.reqs:
			r.res <- r.fn()
		}
	}
}

func (s *Session) shutdown() error {
	close(s.halted)
	if l := s.st.listener; l != nil {
		l.cancel()
		<-l.done
		s.st.listener = nil
	}
	var errs []error
	if err := s.disconnect(); err != nil {
		errs = append(errs, err)
	}
	if s.st.driverOpen {
		if err := s.drv.CloseDriver(); err != nil {
			errs = append(errs, s.fail(err))
		} else {
			s.info("Close driver success!")
		}
		s.st.driverOpen = false
	}
	s.evMu.Lock()
	s.evtsClosed = true
	close(s.evts)
	s.evMu.Unlock()
	return errors.Join(errs...)
}

// exec runs fn on the session goroutine.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	r := request{fn: fn, res: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-s.halted:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-r.res
}

func (s *Session) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	if s.evtsClosed {
		return
	}
	select {
	case s.evts <- e:
	default:
		log.Println("event channel full, dropped:", e.String())
	}
}

func (s *Session) info(format string, values ...interface{}) {
	s.publish(Event{Type: EventTypeInfo, Details: fmt.Sprintf(format, values...)})
}

func (s *Session) warn(format string, values ...interface{}) {
	s.publish(Event{Type: EventTypeWarning, Details: fmt.Sprintf(format, values...)})
}

func (s *Session) debug(format string, values ...interface{}) {
	s.publish(Event{Type: EventTypeDebug, Details: fmt.Sprintf(format, values...)})
}

// fail publishes err as an error event and returns it.
func (s *Session) fail(err error) error {
	s.publish(Event{Type: EventTypeError, Details: err.Error(), Err: err})
	return err
}

// Configure opens the driver, reads the hardware configuration and the
// binding of the application channel. It can be called again to refresh the
// channel list. When the application channel is not assigned to hardware the
// channel list is still returned together with ErrChannelNotConfigured.
func (s *Session) Configure(ctx context.Context) (*vxlapi.DriverConfig, error) {
	var out *vxlapi.DriverConfig
	err := s.exec(ctx, func() error {
		var err error
		out, err = s.configure()
		return err
	})
	return out, err
}

func (s *Session) configure() (*vxlapi.DriverConfig, error) {
	if !s.st.driverOpen {
		if err := s.drv.OpenDriver(); err != nil {
			return nil, s.fail(err)
		}
		s.st.driverOpen = true
		s.info("Open driver success!")
	}
	dc, err := s.drv.GetDriverConfig()
	if err != nil {
		return nil, s.fail(err)
	}
	s.st.config = dc
	s.info("Get driver config success!")
	s.info("Driver Version: %s", dc.Version())
	for _, ch := range dc.Channels {
		s.debug("channel %d: %s", ch.ChannelIndex, ch)
	}
	if _, err := s.readBinding(); err != nil {
		if errors.Is(err, ErrChannelNotConfigured) {
			return copyDriverConfig(dc), err
		}
		return nil, err
	}
	return copyDriverConfig(dc), nil
}

func copyDriverConfig(dc *vxlapi.DriverConfig) *vxlapi.DriverConfig {
	out := &vxlapi.DriverConfig{
		DLLVersion: dc.DLLVersion,
		Channels:   make([]vxlapi.ChannelConfig, len(dc.Channels)),
	}
	copy(out.Channels, dc.Channels)
	return out
}

// readBinding fetches the binding of the application channel into state.
func (s *Session) readBinding() (vxlapi.Binding, error) {
	b, err := s.drv.GetApplConfig(s.cfg.AppName, s.cfg.AppChannel, vxlapi.BUS_TYPE_CAN)
	if err != nil {
		return b, s.fail(err)
	}
	s.st.binding = b
	s.info("hw type: %s", b.HwType)
	s.info("hw index: %d", b.HwIndex)
	s.info("hw channel: %d", b.HwChannel)
	s.info("Get app config success!")
	if !b.Configured() {
		s.warn("%s channel %d: %v", s.cfg.AppName, s.cfg.AppChannel, ErrChannelNotConfigured)
		return b, ErrChannelNotConfigured
	}
	if dc := s.st.config; dc != nil {
		if ch, ok := dc.Channel(b); ok {
			s.info("Bound to %s", ch.Name)
		}
	}
	return b, nil
}

// Channels returns the channel list read by the last Configure.
func (s *Session) Channels(ctx context.Context) ([]vxlapi.ChannelConfig, error) {
	var out []vxlapi.ChannelConfig
	err := s.exec(ctx, func() error {
		if s.st.config == nil {
			return ErrNotConfigured
		}
		out = copyDriverConfig(s.st.config).Channels
		return nil
	})
	return out, err
}

// Binding reads the current binding of the application channel from the driver.
func (s *Session) Binding(ctx context.Context) (vxlapi.Binding, error) {
	var out vxlapi.Binding
	err := s.exec(ctx, func() error {
		if !s.st.driverOpen {
			return s.fail(ErrNotConfigured)
		}
		var err error
		out, err = s.readBinding()
		return err
	})
	return out, err
}

// Bind assigns the application channel to the hardware channel b and reads
// the binding back. It is rejected while the port is open.
func (s *Session) Bind(ctx context.Context, b vxlapi.Binding) (vxlapi.Binding, error) {
	var out vxlapi.Binding
	err := s.exec(ctx, func() error {
		switch {
		case !s.st.driverOpen:
			return s.fail(ErrNotConfigured)
		case s.st.connected:
			return s.fail(ErrConnected)
		}
		if err := s.drv.SetApplConfig(s.cfg.AppName, s.cfg.AppChannel, b, vxlapi.BUS_TYPE_CAN); err != nil {
			return s.fail(err)
		}
		s.info("Set app config success!")
		var err error
		out, err = s.readBinding()
		return err
	})
	return out, err
}

// Connect opens a port on the bound channel, arms the notification and puts
// the channel on the bus. Everything acquired is released again when a later
// step fails.
func (s *Session) Connect(ctx context.Context) error {
	return s.exec(ctx, s.connect)
}

func (s *Session) connect() (err error) {
	switch {
	case !s.st.driverOpen:
		return s.fail(ErrNotConfigured)
	case s.st.connected:
		return s.fail(ErrConnected)
	case !s.st.binding.Configured():
		return s.fail(ErrChannelNotConfigured)
	}

	mask := s.drv.GetChannelMask(s.st.binding)
	if mask == 0 {
		return s.fail(fmt.Errorf("%w for %s", ErrZeroChannelMask, s.st.binding))
	}
	s.info("Channel mask: 0x%X", uint64(mask))

	port, permission, err := s.drv.OpenPort(s.cfg.AppName, mask, s.cfg.RxQueueSize, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN)
	if err != nil {
		return s.fail(err)
	}
	s.info("Open port success!")
	s.debug("port handle %d, permission mask 0x%X", port, uint64(permission))
	defer func() {
		if err == nil {
			return
		}
		if cerr := s.drv.ClosePort(port); cerr != nil {
			s.warn("rollback: %v", cerr)
		}
	}()

	if s.cfg.Bitrate != 0 {
		if permission&mask == 0 {
			s.warn("no init access on channel mask 0x%X, keeping the current bitrate", uint64(mask))
		} else {
			if err := s.drv.CanSetChannelBitrate(port, permission&mask, s.cfg.Bitrate); err != nil {
				return s.fail(err)
			}
			s.info("Set bitrate %d success!", s.cfg.Bitrate)
		}
	}

	note, err := s.drv.SetNotification(port, s.cfg.QueueLevel)
	if err != nil {
		return s.fail(err)
	}
	s.info("Set notification success!")

	if err := s.drv.ActivateChannel(port, mask, vxlapi.BUS_TYPE_CAN, s.cfg.ActivateFlags); err != nil {
		return s.fail(err)
	}
	s.info("Activate channel success!")

	s.st.connected = true
	s.st.port = port
	s.st.access = mask
	s.st.permission = permission
	s.st.note = note
	s.info("Initialization Complete!")
	return nil
}

// Disconnect stops the listener, takes the channel off the bus and closes
// the port. The driver stays open.
func (s *Session) Disconnect(ctx context.Context) error {
	done, err := s.stopListen(ctx)
	if err != nil {
		return err
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.exec(ctx, s.disconnect)
}

// disconnect releases the port. Each step is attempted even if an earlier
// one failed.
func (s *Session) disconnect() error {
	if !s.st.connected {
		return nil
	}
	if l := s.st.listener; l != nil {
		l.cancel()
	}
	var errs []error
	if err := s.drv.DeactivateChannel(s.st.port, s.st.access); err != nil {
		errs = append(errs, s.fail(err))
	} else {
		s.info("Deactivate channel success!")
	}
	if err := s.drv.ClosePort(s.st.port); err != nil {
		errs = append(errs, s.fail(err))
	} else {
		s.info("Close port success!")
	}
	s.st.connected = false
	s.st.port = vxlapi.INVALID_PORTHANDLE
	s.st.access = 0
	s.st.permission = 0
	s.st.note = 0
	return errors.Join(errs...)
}

// Connected reports whether the port is open.
func (s *Session) Connected(ctx context.Context) bool {
	var out bool
	s.exec(ctx, func() error {
		out = s.st.connected
		return nil
	})
	return out
}

// Send transmits f on the bound channel.
func (s *Session) Send(ctx context.Context, f *Frame) error {
	if err := f.Validate(); err != nil {
		s.publish(Event{Type: EventTypeError, Details: err.Error(), Err: err})
		return err
	}
	return s.send(ctx, f, f.HexData())
}

// SendString parses the hexadecimal identifier and payload texts and
// transmits the result. Nothing reaches the driver when parsing fails.
func (s *Session) SendString(ctx context.Context, identifier, payload string) error {
	id, extended, err := ParseIdentifier(identifier)
	if err != nil {
		s.publish(Event{Type: EventTypeError, Details: err.Error(), Err: err})
		return err
	}
	data, err := ParsePayload(payload)
	if err != nil {
		s.publish(Event{Type: EventTypeError, Details: err.Error(), Err: err})
		return err
	}
	f := NewFrame(id, data, Outgoing)
	f.Extended = extended
	return s.send(ctx, f, payload)
}

func (s *Session) send(ctx context.Context, f *Frame, text string) error {
	ev := f.event()
	return s.exec(ctx, func() error {
		if !s.st.connected {
			return s.fail(ErrNotConnected)
		}
		err := retry.Do(
			func() error {
				_, err := s.drv.CanTransmit(s.st.port, s.st.access, []vxlapi.Event{ev})
				return err
			},
			retry.Context(ctx),
			retry.Attempts(s.cfg.SendAttempts),
			retry.Delay(s.cfg.SendDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return Classify(err) == ClassTransient
			}),
			retry.OnRetry(func(n uint, err error) {
				if n+1 < s.cfg.SendAttempts {
					s.warn("send attempt %d failed: %v", n+1, err)
				}
			}),
		)
		if err != nil {
			return s.fail(err)
		}
		s.info("Send message success!")
		s.info("Send ID: 0x%X; Send message: %s", f.Identifier, text)
		return nil
	})
}

// StartListen starts the receive loop on the open port.
func (s *Session) StartListen(ctx context.Context) error {
	return s.exec(ctx, func() error {
		switch {
		case !s.st.connected:
			return s.fail(ErrNotConnected)
		case s.st.listener != nil:
			return s.fail(ErrAlreadyListening)
		}
		lctx, cancel := context.WithCancel(s.ctx)
		l := &listener{cancel: cancel, done: make(chan struct{})}
		s.st.listener = l
		port, note := s.st.port, s.st.note
		s.eg.Go(func() error {
			s.listen(lctx, l, port, note)
			return nil
		})
		return nil
	})
}

// StopListen asks the receive loop to stop and returns without waiting for
// it. The loop exits after its current wait. It is a no-op when nothing
// listens.
func (s *Session) StopListen(ctx context.Context) error {
	_, err := s.stopListen(ctx)
	return err
}

func (s *Session) stopListen(ctx context.Context) (<-chan struct{}, error) {
	var done chan struct{}
	err := s.exec(ctx, func() error {
		l := s.st.listener
		if l == nil {
			return nil
		}
		l.cancel()
		done = l.done
		s.info("Stop listening")
		return nil
	})
	return done, err
}

// Listening reports whether a receive loop is running.
func (s *Session) Listening(ctx context.Context) bool {
	var out bool
	s.exec(ctx, func() error {
		out = s.st.listener != nil
		return nil
	})
	return out
}

// Close stops the listener, releases the port and closes the driver.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.eg.Wait()
	})
	return s.closeErr
}
