//go:build !windows || !(amd64 || arm64)

package vxlapi

import "time"

// Library is a loaded instance of the XL Driver Library.
type Library struct{}

func Load(path string) (*Library, error) {
	return nil, ErrNotSupported
}

func (l *Library) Release() error { return ErrNotSupported }

func (l *Library) OpenDriver() error { return ErrNotSupported }

func (l *Library) CloseDriver() error { return ErrNotSupported }

func (l *Library) GetDriverConfig() (*DriverConfig, error) { return nil, ErrNotSupported }

func (l *Library) GetApplConfig(appName string, appChannel uint32, busType BusType) (Binding, error) {
	return Binding{}, ErrNotSupported
}

func (l *Library) SetApplConfig(appName string, appChannel uint32, b Binding, busType BusType) error {
	return ErrNotSupported
}

func (l *Library) GetChannelMask(b Binding) Access { return 0 }

func (l *Library) OpenPort(appName string, access Access, rxQueueSize, interfaceVersion uint32, busType BusType) (PortHandle, Access, error) {
	return INVALID_PORTHANDLE, 0, ErrNotSupported
}

func (l *Library) ClosePort(port PortHandle) error { return ErrNotSupported }

func (l *Library) SetNotification(port PortHandle, queueLevel int32) (Notification, error) {
	return 0, ErrNotSupported
}

func (l *Library) ActivateChannel(port PortHandle, access Access, busType BusType, flags uint32) error {
	return ErrNotSupported
}

func (l *Library) DeactivateChannel(port PortHandle, access Access) error { return ErrNotSupported }

func (l *Library) CanSetChannelBitrate(port PortHandle, access Access, bitrate uint32) error {
	return ErrNotSupported
}

func (l *Library) CanTransmit(port PortHandle, access Access, events []Event) (uint32, error) {
	return 0, ErrNotSupported
}

func (l *Library) Receive(port PortHandle) (*Event, error) { return nil, ErrNotSupported }

func (l *Library) Wait(n Notification, timeout time.Duration) (WaitResult, error) {
	return WAIT_FAILED, ErrNotSupported
}
