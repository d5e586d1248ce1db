package goxl

import (
	"context"
	"errors"
	"fmt"

	"github.com/roffe/goxl/pkg/vxlapi"
)

// listen waits on the notification handle and drains the receive queue on
// the session goroutine each time it is signalled. A timeout publishes a
// heartbeat. Cancellation is checked once per wait.
func (s *Session) listen(ctx context.Context, l *listener, port vxlapi.PortHandle, note vxlapi.Notification) {
	defer func() {
		s.exec(context.Background(), func() error {
			if s.st.listener == l {
				s.st.listener = nil
			}
			return nil
		})
		close(l.done)
	}()
	s.info("Listening...")
	for ctx.Err() == nil {
		res, err := s.drv.Wait(note, s.cfg.WaitTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("%w: %v", ErrWaitFailed, err))
			return
		}
		switch res {
		case vxlapi.WAIT_OBJECT_0:
			if err := s.exec(ctx, func() error { return s.drain(port) }); err != nil {
				return
			}
		case vxlapi.WAIT_TIMEOUT:
			s.info("Listening...")
		default:
			s.fail(fmt.Errorf("%w: %s", ErrWaitFailed, res))
			return
		}
	}
}

// drain reads events until the queue reports empty. It runs on the session
// goroutine.
func (s *Session) drain(port vxlapi.PortHandle) error {
	if !s.st.connected || s.st.port != port {
		return s.fail(fmt.Errorf("receive on port %d stopped: %w", port, ErrNotConnected))
	}
	for {
		ev, err := s.drv.Receive(port)
		if err != nil {
			if errors.Is(err, vxlapi.ERR_QUEUE_IS_EMPTY) {
				return nil
			}
			return s.fail(err)
		}
		s.handleEvent(ev)
	}
}

func (s *Session) handleEvent(ev *vxlapi.Event) {
	if ev.Tag != vxlapi.RECEIVE_MSG {
		s.debug("Received event %s on channel %d", ev.Tag, ev.ChanIndex)
		return
	}
	if ev.Msg.Flags&vxlapi.CAN_MSG_FLAG_OVERRUN != 0 {
		s.warn("receive queue overrun, messages were lost")
	}
	if ev.Msg.Flags&vxlapi.CAN_MSG_FLAG_ERROR_FRAME != 0 {
		s.warn("error frame on channel %d", ev.ChanIndex)
		return
	}
	f, err := frameFromEvent(ev)
	if err != nil {
		s.warn("dropped message 0x%X: %v", ev.Msg.ID, err)
		return
	}
	if f.Direction == Outgoing {
		s.publish(Event{
			Type:    EventTypeInfo,
			Details: fmt.Sprintf("Transmit confirmed ID: 0x%X; message: %s", f.Identifier, f.HexData()),
			Frame:   f,
		})
		return
	}
	s.publish(Event{
		Type:    EventTypeInfo,
		Details: fmt.Sprintf("Received Message ID: 0x%X; Received message: %s", f.Identifier, f.HexData()),
		Frame:   f,
	})
}
