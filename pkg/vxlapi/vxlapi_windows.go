//go:build windows && (amd64 || arm64)

package vxlapi

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Library is a loaded instance of the XL Driver Library.
type Library struct {
	dll *windows.DLL

	procOpenDriver           *windows.Proc
	procCloseDriver          *windows.Proc
	procGetDriverConfig      *windows.Proc
	procGetApplConfig        *windows.Proc
	procSetApplConfig        *windows.Proc
	procGetChannelMask       *windows.Proc
	procOpenPort             *windows.Proc
	procClosePort            *windows.Proc
	procSetNotification      *windows.Proc
	procActivateChannel      *windows.Proc
	procDeactivateChannel    *windows.Proc
	procCanSetChannelBitrate *windows.Proc
	procCanTransmit          *windows.Proc
	procReceive              *windows.Proc
}

// Load opens the XL library at path and resolves every entry point used by
// this package.
func Load(path string) (*Library, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	l := &Library{dll: dll}
	procs := map[string]**windows.Proc{
		"xlOpenDriver":           &l.procOpenDriver,
		"xlCloseDriver":          &l.procCloseDriver,
		"xlGetDriverConfig":      &l.procGetDriverConfig,
		"xlGetApplConfig":        &l.procGetApplConfig,
		"xlSetApplConfig":        &l.procSetApplConfig,
		"xlGetChannelMask":       &l.procGetChannelMask,
		"xlOpenPort":             &l.procOpenPort,
		"xlClosePort":            &l.procClosePort,
		"xlSetNotification":      &l.procSetNotification,
		"xlActivateChannel":      &l.procActivateChannel,
		"xlDeactivateChannel":    &l.procDeactivateChannel,
		"xlCanSetChannelBitrate": &l.procCanSetChannelBitrate,
		"xlCanTransmit":          &l.procCanTransmit,
		"xlReceive":              &l.procReceive,
	}
	for name, procPtr := range procs {
		proc, err := dll.FindProc(name)
		if err != nil {
			dll.Release()
			return nil, fmt.Errorf("failed to find procedure %s: %w", name, err)
		}
		*procPtr = proc
	}
	return l, nil
}

// Release unloads the library.
func (l *Library) Release() error {
	return l.dll.Release()
}

func (l *Library) OpenDriver() error {
	r1, _, _ := l.procOpenDriver.Call()
	return checkErr("xlOpenDriver", r1)
}

func (l *Library) CloseDriver() error {
	r1, _, _ := l.procCloseDriver.Call()
	return checkErr("xlCloseDriver", r1)
}

func (l *Library) GetDriverConfig() (*DriverConfig, error) {
	buf := make([]byte, DriverConfigSize)
	r1, _, _ := l.procGetDriverConfig.Call(uintptr(unsafe.Pointer(&buf[0])))
	if err := checkErr("xlGetDriverConfig", r1); err != nil {
		return nil, err
	}
	cfg := new(DriverConfig)
	if err := cfg.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Library) GetApplConfig(appName string, appChannel uint32, busType BusType) (Binding, error) {
	name, err := windows.BytePtrFromString(appName)
	if err != nil {
		return Binding{}, err
	}
	var hwType, hwIndex, hwChannel uint32
	r1, _, _ := l.procGetApplConfig.Call(
		uintptr(unsafe.Pointer(name)),
		uintptr(appChannel),
		uintptr(unsafe.Pointer(&hwType)),
		uintptr(unsafe.Pointer(&hwIndex)),
		uintptr(unsafe.Pointer(&hwChannel)),
		uintptr(busType),
	)
	b := Binding{HwType: HwType(hwType), HwIndex: hwIndex, HwChannel: hwChannel}
	return b, checkErr("xlGetApplConfig", r1)
}

func (l *Library) SetApplConfig(appName string, appChannel uint32, b Binding, busType BusType) error {
	name, err := windows.BytePtrFromString(appName)
	if err != nil {
		return err
	}
	r1, _, _ := l.procSetApplConfig.Call(
		uintptr(unsafe.Pointer(name)),
		uintptr(appChannel),
		uintptr(b.HwType),
		uintptr(b.HwIndex),
		uintptr(b.HwChannel),
		uintptr(busType),
	)
	return checkErr("xlSetApplConfig", r1)
}

// GetChannelMask returns zero when the triple does not name a channel.
func (l *Library) GetChannelMask(b Binding) Access {
	r1, _, _ := l.procGetChannelMask.Call(uintptr(b.HwType), uintptr(b.HwIndex), uintptr(b.HwChannel))
	return Access(r1)
}

// OpenPort requests permission on access and returns the port together with
// the granted init access mask.
func (l *Library) OpenPort(appName string, access Access, rxQueueSize, interfaceVersion uint32, busType BusType) (PortHandle, Access, error) {
	name, err := windows.BytePtrFromString(appName)
	if err != nil {
		return INVALID_PORTHANDLE, 0, err
	}
	port := INVALID_PORTHANDLE
	permission := access
	r1, _, _ := l.procOpenPort.Call(
		uintptr(unsafe.Pointer(&port)),
		uintptr(unsafe.Pointer(name)),
		uintptr(access),
		uintptr(unsafe.Pointer(&permission)),
		uintptr(rxQueueSize),
		uintptr(interfaceVersion),
		uintptr(busType),
	)
	if err := checkErr("xlOpenPort", r1); err != nil {
		return INVALID_PORTHANDLE, 0, err
	}
	return port, permission, nil
}

func (l *Library) ClosePort(port PortHandle) error {
	r1, _, _ := l.procClosePort.Call(uintptr(port))
	return checkErr("xlClosePort", r1)
}

func (l *Library) SetNotification(port PortHandle, queueLevel int32) (Notification, error) {
	var handle windows.Handle
	r1, _, _ := l.procSetNotification.Call(uintptr(port), uintptr(unsafe.Pointer(&handle)), uintptr(queueLevel))
	if err := checkErr("xlSetNotification", r1); err != nil {
		return 0, err
	}
	return Notification(handle), nil
}

func (l *Library) ActivateChannel(port PortHandle, access Access, busType BusType, flags uint32) error {
	r1, _, _ := l.procActivateChannel.Call(uintptr(port), uintptr(access), uintptr(busType), uintptr(flags))
	return checkErr("xlActivateChannel", r1)
}

func (l *Library) DeactivateChannel(port PortHandle, access Access) error {
	r1, _, _ := l.procDeactivateChannel.Call(uintptr(port), uintptr(access))
	return checkErr("xlDeactivateChannel", r1)
}

func (l *Library) CanSetChannelBitrate(port PortHandle, access Access, bitrate uint32) error {
	r1, _, _ := l.procCanSetChannelBitrate.Call(uintptr(port), uintptr(access), uintptr(bitrate))
	return checkErr("xlCanSetChannelBitrate", r1)
}

// CanTransmit queues events for transmission and returns how many the driver
// accepted.
func (l *Library) CanTransmit(port PortHandle, access Access, events []Event) (uint32, error) {
	if len(events) == 0 {
		return 0, nil
	}
	buf, err := MarshalEvents(events)
	if err != nil {
		return 0, err
	}
	count := uint32(len(events))
	r1, _, _ := l.procCanTransmit.Call(
		uintptr(port),
		uintptr(access),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	return count, checkErr("xlCanTransmit", r1)
}

// Receive reads one event. An empty queue is reported as ERR_QUEUE_IS_EMPTY.
func (l *Library) Receive(port PortHandle) (*Event, error) {
	var buf [EventSize]byte
	count := uint32(1)
	r1, _, _ := l.procReceive.Call(
		uintptr(port),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	if err := checkErr("xlReceive", r1); err != nil {
		return nil, err
	}
	ev := new(Event)
	if err := ev.UnmarshalBinary(buf[:]); err != nil {
		return nil, err
	}
	return ev, nil
}

// Wait blocks on the notification handle for at most timeout.
func (l *Library) Wait(n Notification, timeout time.Duration) (WaitResult, error) {
	ev, err := windows.WaitForSingleObject(windows.Handle(n), uint32(timeout/time.Millisecond))
	if WaitResult(ev) == WAIT_FAILED {
		if err == nil {
			err = windows.ERROR_INVALID_HANDLE
		}
		return WAIT_FAILED, fmt.Errorf("WaitForSingleObject: %w", err)
	}
	return WaitResult(ev), nil
}
