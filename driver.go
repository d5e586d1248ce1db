package goxl

import (
	"time"

	"github.com/roffe/goxl/pkg/vxlapi"
)

// Driver is the subset of the XL Driver Library used by a Session.
// *vxlapi.Library and *Virtual implement it.
type Driver interface {
	OpenDriver() error
	CloseDriver() error
	GetDriverConfig() (*vxlapi.DriverConfig, error)
	GetApplConfig(appName string, appChannel uint32, busType vxlapi.BusType) (vxlapi.Binding, error)
	SetApplConfig(appName string, appChannel uint32, b vxlapi.Binding, busType vxlapi.BusType) error
	GetChannelMask(b vxlapi.Binding) vxlapi.Access
	OpenPort(appName string, access vxlapi.Access, rxQueueSize, interfaceVersion uint32, busType vxlapi.BusType) (vxlapi.PortHandle, vxlapi.Access, error)
	ClosePort(port vxlapi.PortHandle) error
	SetNotification(port vxlapi.PortHandle, queueLevel int32) (vxlapi.Notification, error)
	ActivateChannel(port vxlapi.PortHandle, access vxlapi.Access, busType vxlapi.BusType, flags uint32) error
	DeactivateChannel(port vxlapi.PortHandle, access vxlapi.Access) error
	CanSetChannelBitrate(port vxlapi.PortHandle, access vxlapi.Access, bitrate uint32) error
	CanTransmit(port vxlapi.PortHandle, access vxlapi.Access, events []vxlapi.Event) (uint32, error)
	Receive(port vxlapi.PortHandle) (*vxlapi.Event, error)
	Wait(n vxlapi.Notification, timeout time.Duration) (vxlapi.WaitResult, error)
}

var (
	_ Driver = (*vxlapi.Library)(nil)
	_ Driver = (*Virtual)(nil)
)

// LoadDriver returns the in-process virtual bus when cfg.Virtual is set and
// loads the vendor library from cfg.DLL otherwise. The returned func releases
// the library.
func LoadDriver(cfg *Config) (Driver, func() error, error) {
	if cfg.Virtual {
		v := NewVirtual()
		v.SetLoopback(true)
		return v, func() error { return nil }, nil
	}
	lib, err := vxlapi.Load(cfg.DLL)
	if err != nil {
		return nil, nil, Unrecoverable(err)
	}
	return lib, lib.Release, nil
}
