package goxl

import (
	"sync"
	"time"

	"github.com/roffe/goxl/pkg/vxlapi"
)

// Virtual is an in-process stand-in for the XL Driver Library. It exposes two
// virtual CAN channels on one bus. Frames transmitted on a port are delivered
// to every other port with an active channel, and back to the sender when
// loopback is enabled.
type Virtual struct {
	mu       sync.Mutex
	open     bool
	loopback bool
	start    time.Time
	channels []vxlapi.ChannelConfig
	bindings map[applChannel]vxlapi.Binding
	ports    map[vxlapi.PortHandle]*virtualPort
	notes    map[vxlapi.Notification]*virtualPort
	nextPort vxlapi.PortHandle
	nextNote vxlapi.Notification
	failures map[string]vxlapi.Status
	calls    map[string]int
}

type applChannel struct {
	name    string
	channel uint32
}

type virtualPort struct {
	handle     vxlapi.PortHandle
	access     vxlapi.Access
	permission vxlapi.Access
	active     vxlapi.Access
	size       int
	queue      []vxlapi.Event
	overrun    bool
	level      int32
	signal     chan struct{}
	closed     chan struct{}
}

const virtualDLLVersion = 0x14030011

func NewVirtual() *Virtual {
	v := &Virtual{
		start:    time.Now(),
		bindings: make(map[applChannel]vxlapi.Binding),
		ports:    make(map[vxlapi.PortHandle]*virtualPort),
		notes:    make(map[vxlapi.Notification]*virtualPort),
		failures: make(map[string]vxlapi.Status),
		calls:    make(map[string]int),
		nextPort: 1,
		nextNote: 1,
	}
	for i := 0; i < 2; i++ {
		v.channels = append(v.channels, vxlapi.ChannelConfig{
			Name:                   "Virtual Channel " + string(rune('1'+i)),
			HwType:                 vxlapi.HWTYPE_VIRTUAL,
			HwIndex:                0,
			HwChannel:              uint32(i),
			TransceiverType:        0x0006,
			ChannelIndex:           uint8(i),
			ChannelMask:            vxlapi.Access(1) << i,
			ChannelBusCapabilities: uint32(vxlapi.BUS_TYPE_CAN) << 16,
			ConnectedBusType:       vxlapi.BUS_TYPE_CAN,
			BusParamsType:          vxlapi.BUS_TYPE_CAN,
			Bitrate:                500000,
			DriverVersion:          virtualDLLVersion,
			InterfaceVersion:       vxlapi.INTERFACE_VERSION,
			TransceiverName:        "Virtual CAN",
		})
	}
	return v
}

// SetLoopback controls whether a port receives its own transmissions.
func (v *Virtual) SetLoopback(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loopback = on
}

// Fail makes every later call of the named XL function return status.
// Passing vxlapi.SUCCESS clears the failure. The notification wait is
// named WaitForSingleObject.
func (v *Virtual) Fail(fn string, status vxlapi.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if status == vxlapi.SUCCESS {
		delete(v.failures, fn)
		return
	}
	v.failures[fn] = status
}

// Calls returns how often the named XL function was called.
func (v *Virtual) Calls(fn string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[fn]
}

// OpenPorts returns the number of ports not yet closed.
func (v *Virtual) OpenPorts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.ports)
}

// Inject puts f on the bus as if a remote node on the channels in access had
// sent it.
func (v *Virtual) Inject(access vxlapi.Access, f *Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	ev := f.event()
	ev.Tag = vxlapi.RECEIVE_MSG
	ev.TimeStamp = v.now()
	for _, p := range v.ports {
		if p.active&access != 0 {
			v.deliver(p, ev)
		}
	}
	return nil
}

// call must be called with mu held.
func (v *Virtual) call(fn string, needOpen bool) error {
	v.calls[fn]++
	if st, ok := v.failures[fn]; ok {
		return vxlapi.NewError(fn, st)
	}
	if needOpen && !v.open {
		return vxlapi.NewError(fn, vxlapi.ERR_CANNOT_OPEN_DRIVER)
	}
	return nil
}

func (v *Virtual) now() uint64 {
	return uint64(time.Since(v.start).Nanoseconds())
}

func (v *Virtual) allChannels() vxlapi.Access {
	var all vxlapi.Access
	for _, ch := range v.channels {
		all |= ch.ChannelMask
	}
	return all
}

// deliver must be called with mu held.
func (v *Virtual) deliver(p *virtualPort, ev vxlapi.Event) {
	if len(p.queue) >= p.size {
		p.overrun = true
		return
	}
	for _, ch := range v.channels {
		if p.active&ch.ChannelMask != 0 {
			ev.ChanIndex = ch.ChannelIndex
			break
		}
	}
	ev.PortHandle = uint16(p.handle)
	p.queue = append(p.queue, ev)
	if p.level > 0 && len(p.queue) >= int(p.level) {
		select {
		case p.signal <- struct{}{}:
		default:
		}
	}
}

func (v *Virtual) OpenDriver() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlOpenDriver", false); err != nil {
		return err
	}
	v.open = true
	return nil
}

func (v *Virtual) CloseDriver() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlCloseDriver", true); err != nil {
		return err
	}
	for h, p := range v.ports {
		v.closePort(h, p)
	}
	v.open = false
	return nil
}

func (v *Virtual) GetDriverConfig() (*vxlapi.DriverConfig, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlGetDriverConfig", true); err != nil {
		return nil, err
	}
	cfg := &vxlapi.DriverConfig{
		DLLVersion: virtualDLLVersion,
		Channels:   make([]vxlapi.ChannelConfig, len(v.channels)),
	}
	copy(cfg.Channels, v.channels)
	for i := range cfg.Channels {
		for _, p := range v.ports {
			if p.active&cfg.Channels[i].ChannelMask != 0 {
				cfg.Channels[i].IsOnBus = true
			}
		}
	}
	return cfg, nil
}

func (v *Virtual) GetApplConfig(appName string, appChannel uint32, busType vxlapi.BusType) (vxlapi.Binding, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlGetApplConfig", true); err != nil {
		return vxlapi.Binding{}, err
	}
	if busType != vxlapi.BUS_TYPE_CAN {
		return vxlapi.Binding{}, vxlapi.NewError("xlGetApplConfig", vxlapi.ERR_WRONG_BUS_TYPE)
	}
	if b, ok := v.bindings[applChannel{appName, appChannel}]; ok {
		return b, nil
	}
	// unassigned application channels default to the channel with the same index
	if int(appChannel) < len(v.channels) {
		return v.channels[appChannel].Binding(), nil
	}
	return vxlapi.Binding{}, nil
}

func (v *Virtual) SetApplConfig(appName string, appChannel uint32, b vxlapi.Binding, busType vxlapi.BusType) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlSetApplConfig", true); err != nil {
		return err
	}
	if busType != vxlapi.BUS_TYPE_CAN {
		return vxlapi.NewError("xlSetApplConfig", vxlapi.ERR_WRONG_BUS_TYPE)
	}
	if b.Configured() {
		found := false
		for _, ch := range v.channels {
			if ch.Binding() == b {
				found = true
				break
			}
		}
		if !found {
			return vxlapi.NewError("xlSetApplConfig", vxlapi.ERR_HW_NOT_PRESENT)
		}
	}
	v.bindings[applChannel{appName, appChannel}] = b
	return nil
}

func (v *Virtual) GetChannelMask(b vxlapi.Binding) vxlapi.Access {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlGetChannelMask", true); err != nil {
		return 0
	}
	for _, ch := range v.channels {
		if ch.Binding() == b {
			return ch.ChannelMask
		}
	}
	return 0
}

func (v *Virtual) OpenPort(appName string, access vxlapi.Access, rxQueueSize, interfaceVersion uint32, busType vxlapi.BusType) (vxlapi.PortHandle, vxlapi.Access, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlOpenPort", true); err != nil {
		return vxlapi.INVALID_PORTHANDLE, 0, err
	}
	switch {
	case busType != vxlapi.BUS_TYPE_CAN:
		return vxlapi.INVALID_PORTHANDLE, 0, vxlapi.NewError("xlOpenPort", vxlapi.ERR_WRONG_BUS_TYPE)
	case access == 0 || access&^v.allChannels() != 0:
		return vxlapi.INVALID_PORTHANDLE, 0, vxlapi.NewError("xlOpenPort", vxlapi.ERR_INVALID_ACCESS)
	case interfaceVersion != vxlapi.INTERFACE_VERSION && interfaceVersion != vxlapi.INTERFACE_VERSION_V4:
		return vxlapi.INVALID_PORTHANDLE, 0, vxlapi.NewError("xlOpenPort", vxlapi.ERR_WRONG_PARAMETER)
	case rxQueueSize < 16 || rxQueueSize > 32768 || rxQueueSize&(rxQueueSize-1) != 0:
		return vxlapi.INVALID_PORTHANDLE, 0, vxlapi.NewError("xlOpenPort", vxlapi.ERR_WRONG_PARAMETER)
	}
	// init access goes to the first port asking for a channel
	permission := access
	for _, p := range v.ports {
		permission &^= p.permission
	}
	p := &virtualPort{
		handle:     v.nextPort,
		access:     access,
		permission: permission,
		size:       int(rxQueueSize),
		signal:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	v.nextPort++
	v.ports[p.handle] = p
	return p.handle, permission, nil
}

func (v *Virtual) ClosePort(port vxlapi.PortHandle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlClosePort", true); err != nil {
		return err
	}
	p, ok := v.ports[port]
	if !ok {
		return vxlapi.NewError("xlClosePort", vxlapi.ERR_INVALID_PORT)
	}
	v.closePort(port, p)
	return nil
}

func (v *Virtual) closePort(h vxlapi.PortHandle, p *virtualPort) {
	close(p.closed)
	delete(v.ports, h)
	for n, np := range v.notes {
		if np == p {
			delete(v.notes, n)
		}
	}
}

func (v *Virtual) SetNotification(port vxlapi.PortHandle, queueLevel int32) (vxlapi.Notification, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlSetNotification", true); err != nil {
		return 0, err
	}
	p, ok := v.ports[port]
	if !ok {
		return 0, vxlapi.NewError("xlSetNotification", vxlapi.ERR_INVALID_PORT)
	}
	if queueLevel < 1 || int(queueLevel) > p.size {
		return 0, vxlapi.NewError("xlSetNotification", vxlapi.ERR_INVALID_LEVEL)
	}
	p.level = queueLevel
	for n, np := range v.notes {
		if np == p {
			return n, nil
		}
	}
	n := v.nextNote
	v.nextNote++
	v.notes[n] = p
	return n, nil
}

func (v *Virtual) ActivateChannel(port vxlapi.PortHandle, access vxlapi.Access, busType vxlapi.BusType, flags uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlActivateChannel", true); err != nil {
		return err
	}
	p, ok := v.ports[port]
	switch {
	case !ok:
		return vxlapi.NewError("xlActivateChannel", vxlapi.ERR_INVALID_PORT)
	case busType != vxlapi.BUS_TYPE_CAN:
		return vxlapi.NewError("xlActivateChannel", vxlapi.ERR_WRONG_BUS_TYPE)
	case access == 0 || access&^p.access != 0:
		return vxlapi.NewError("xlActivateChannel", vxlapi.ERR_INVALID_ACCESS)
	}
	if flags&vxlapi.ACTIVATE_RESET_CLOCK != 0 {
		v.start = time.Now()
	}
	p.active |= access
	return nil
}

func (v *Virtual) DeactivateChannel(port vxlapi.PortHandle, access vxlapi.Access) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlDeactivateChannel", true); err != nil {
		return err
	}
	p, ok := v.ports[port]
	if !ok {
		return vxlapi.NewError("xlDeactivateChannel", vxlapi.ERR_INVALID_PORT)
	}
	p.active &^= access
	return nil
}

func (v *Virtual) CanSetChannelBitrate(port vxlapi.PortHandle, access vxlapi.Access, bitrate uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlCanSetChannelBitrate", true); err != nil {
		return err
	}
	p, ok := v.ports[port]
	switch {
	case !ok:
		return vxlapi.NewError("xlCanSetChannelBitrate", vxlapi.ERR_INVALID_PORT)
	case access == 0 || access&^p.permission != 0:
		return vxlapi.NewError("xlCanSetChannelBitrate", vxlapi.ERR_INIT_ACCESS_MISSING)
	case bitrate == 0 || bitrate > 1000000:
		return vxlapi.NewError("xlCanSetChannelBitrate", vxlapi.ERR_WRONG_PARAMETER)
	}
	for i := range v.channels {
		if v.channels[i].ChannelMask&access != 0 {
			v.channels[i].Bitrate = bitrate
		}
	}
	return nil
}

func (v *Virtual) CanTransmit(port vxlapi.PortHandle, access vxlapi.Access, events []vxlapi.Event) (uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlCanTransmit", true); err != nil {
		return 0, err
	}
	p, ok := v.ports[port]
	switch {
	case !ok:
		return 0, vxlapi.NewError("xlCanTransmit", vxlapi.ERR_INVALID_PORT)
	case access == 0 || access&^p.access != 0:
		return 0, vxlapi.NewError("xlCanTransmit", vxlapi.ERR_INVALID_ACCESS)
	case p.active&access == 0:
		return 0, vxlapi.NewError("xlCanTransmit", vxlapi.ERR_PORT_IS_OFFLINE)
	}
	var sent uint32
	for _, ev := range events {
		if ev.Tag != vxlapi.TRANSMIT_MSG {
			return sent, vxlapi.NewError("xlCanTransmit", vxlapi.ERR_INVALID_TAG)
		}
		if ev.Msg.DLC > vxlapi.MAX_MSG_LEN {
			return sent, vxlapi.NewError("xlCanTransmit", vxlapi.ERR_WRONG_PARAMETER)
		}
		rx := ev
		rx.Tag = vxlapi.RECEIVE_MSG
		rx.TimeStamp = v.now()
		for h, other := range v.ports {
			if other.active == 0 {
				continue
			}
			if h == port {
				if !v.loopback {
					continue
				}
				echo := rx
				echo.Msg.Flags |= vxlapi.CAN_MSG_FLAG_TX_COMPLETED
				v.deliver(other, echo)
				continue
			}
			v.deliver(other, rx)
		}
		sent++
	}
	return sent, nil
}

func (v *Virtual) Receive(port vxlapi.PortHandle) (*vxlapi.Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.call("xlReceive", true); err != nil {
		return nil, err
	}
	p, ok := v.ports[port]
	if !ok {
		return nil, vxlapi.NewError("xlReceive", vxlapi.ERR_INVALID_PORT)
	}
	if len(p.queue) == 0 {
		return nil, vxlapi.NewError("xlReceive", vxlapi.ERR_QUEUE_IS_EMPTY)
	}
	ev := p.queue[0]
	p.queue = p.queue[1:]
	if p.overrun {
		ev.Msg.Flags |= vxlapi.CAN_MSG_FLAG_OVERRUN
		p.overrun = false
	}
	return &ev, nil
}

// Wait blocks until the port behind n has reached its queue level, the port
// is closed or timeout expires.
func (v *Virtual) Wait(n vxlapi.Notification, timeout time.Duration) (vxlapi.WaitResult, error) {
	v.mu.Lock()
	v.calls["WaitForSingleObject"]++
	st, failing := v.failures["WaitForSingleObject"]
	p, ok := v.notes[n]
	v.mu.Unlock()
	if failing {
		return vxlapi.WAIT_FAILED, vxlapi.NewError("WaitForSingleObject", st)
	}
	if !ok {
		return vxlapi.WAIT_FAILED, ErrWaitFailed
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.signal:
		return vxlapi.WAIT_OBJECT_0, nil
	case <-p.closed:
		return vxlapi.WAIT_FAILED, ErrWaitFailed
	case <-t.C:
		return vxlapi.WAIT_TIMEOUT, nil
	}
}
