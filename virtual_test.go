package goxl

import (
	"errors"
	"testing"
	"time"

	"github.com/roffe/goxl/pkg/vxlapi"
)

func openVirtualPort(t *testing.T, v *Virtual, access vxlapi.Access, size uint32) vxlapi.PortHandle {
	t.Helper()
	port, _, err := v.OpenPort("test", access, size, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.ActivateChannel(port, access, vxlapi.BUS_TYPE_CAN, vxlapi.ACTIVATE_NONE); err != nil {
		t.Fatal(err)
	}
	return port
}

func TestVirtualRequiresOpenDriver(t *testing.T) {
	v := NewVirtual()
	if _, err := v.GetDriverConfig(); !errors.Is(err, vxlapi.ERR_CANNOT_OPEN_DRIVER) {
		t.Errorf("GetDriverConfig before open = %v", err)
	}
	if err := v.OpenDriver(); err != nil {
		t.Fatal(err)
	}
	dc, err := v.GetDriverConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(dc.Channels) != 2 || dc.Channels[1].ChannelMask != 0x2 {
		t.Errorf("channels = %v", dc.Channels)
	}
}

func TestVirtualOpenPortPermission(t *testing.T) {
	v := NewVirtual()
	v.OpenDriver()
	_, first, err := v.OpenPort("a", 0x3, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN)
	if err != nil || first != 0x3 {
		t.Fatalf("first port permission = 0x%X, %v", uint64(first), err)
	}
	_, second, err := v.OpenPort("b", 0x1, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN)
	if err != nil || second != 0 {
		t.Fatalf("second port permission = 0x%X, %v", uint64(second), err)
	}

	tests := []struct {
		name    string
		access  vxlapi.Access
		size    uint32
		version uint32
		bus     vxlapi.BusType
		want    vxlapi.Status
	}{
		{"zero access", 0, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN, vxlapi.ERR_INVALID_ACCESS},
		{"unknown channel", 0x4, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN, vxlapi.ERR_INVALID_ACCESS},
		{"queue size", 0x1, 100, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN, vxlapi.ERR_WRONG_PARAMETER},
		{"bus type", 0x1, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_LIN, vxlapi.ERR_WRONG_BUS_TYPE},
		{"interface version", 0x1, 256, 1, vxlapi.BUS_TYPE_CAN, vxlapi.ERR_WRONG_PARAMETER},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.OpenPort("c", tt.access, tt.size, tt.version, tt.bus)
			if !errors.Is(err, tt.want) {
				t.Errorf("OpenPort = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestVirtualTransmitReceive(t *testing.T) {
	v := NewVirtual()
	v.OpenDriver()
	a := openVirtualPort(t, v, 0x1, 256)
	b := openVirtualPort(t, v, 0x2, 256)
	note, err := v.SetNotification(b, 1)
	if err != nil {
		t.Fatal(err)
	}

	ev := NewFrame(0x321, []byte{1, 2, 3}, Outgoing).event()
	n, err := v.CanTransmit(a, 0x1, []vxlapi.Event{ev})
	if err != nil || n != 1 {
		t.Fatalf("CanTransmit = %d, %v", n, err)
	}
	if res, err := v.Wait(note, time.Second); err != nil || res != vxlapi.WAIT_OBJECT_0 {
		t.Fatalf("Wait = %s, %v", res, err)
	}
	got, err := v.Receive(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tag != vxlapi.RECEIVE_MSG || got.Msg.ID != 0x321 || got.Msg.DLC != 3 || got.ChanIndex != 1 {
		t.Errorf("received %+v", got)
	}
	if _, err := v.Receive(b); !errors.Is(err, vxlapi.ERR_QUEUE_IS_EMPTY) {
		t.Errorf("second Receive = %v", err)
	}
	if _, err := v.Receive(a); !errors.Is(err, vxlapi.ERR_QUEUE_IS_EMPTY) {
		t.Errorf("sender received its own frame without loopback: %v", err)
	}
	if res, _ := v.Wait(note, 10*time.Millisecond); res != vxlapi.WAIT_TIMEOUT {
		t.Errorf("Wait on empty queue = %s", res)
	}

	v.SetLoopback(true)
	if _, err := v.CanTransmit(a, 0x1, []vxlapi.Event{ev}); err != nil {
		t.Fatal(err)
	}
	echo, err := v.Receive(a)
	if err != nil {
		t.Fatal(err)
	}
	if echo.Msg.Flags&vxlapi.CAN_MSG_FLAG_TX_COMPLETED == 0 {
		t.Errorf("loopback frame flags = 0x%X", echo.Msg.Flags)
	}
}

func TestVirtualTransmitErrors(t *testing.T) {
	v := NewVirtual()
	v.OpenDriver()
	port, _, err := v.OpenPort("test", 0x1, 256, vxlapi.INTERFACE_VERSION, vxlapi.BUS_TYPE_CAN)
	if err != nil {
		t.Fatal(err)
	}
	ev := NewFrame(0x1, nil, Outgoing).event()
	if _, err := v.CanTransmit(port, 0x1, []vxlapi.Event{ev}); !errors.Is(err, vxlapi.ERR_PORT_IS_OFFLINE) {
		t.Errorf("transmit on inactive channel = %v", err)
	}
	v.ActivateChannel(port, 0x1, vxlapi.BUS_TYPE_CAN, 0)
	bad := ev
	bad.Tag = vxlapi.RECEIVE_MSG
	if _, err := v.CanTransmit(port, 0x1, []vxlapi.Event{bad}); !errors.Is(err, vxlapi.ERR_INVALID_TAG) {
		t.Errorf("transmit with receive tag = %v", err)
	}
	if _, err := v.CanTransmit(99, 0x1, []vxlapi.Event{ev}); !errors.Is(err, vxlapi.ERR_INVALID_PORT) {
		t.Errorf("transmit on unknown port = %v", err)
	}
}

func TestVirtualOverrun(t *testing.T) {
	v := NewVirtual()
	v.OpenDriver()
	port := openVirtualPort(t, v, 0x1, 16)
	for i := 0; i < 20; i++ {
		if err := v.Inject(0x1, NewFrame(uint32(i), nil, Incoming)); err != nil {
			t.Fatal(err)
		}
	}
	first, err := v.Receive(port)
	if err != nil {
		t.Fatal(err)
	}
	if first.Msg.Flags&vxlapi.CAN_MSG_FLAG_OVERRUN == 0 {
		t.Error("overrun not reported")
	}
	count := 1
	for {
		if _, err := v.Receive(port); err != nil {
			break
		}
		count++
	}
	if count != 16 {
		t.Errorf("received %d events, want 16", count)
	}
}

func TestVirtualWaitClosedPort(t *testing.T) {
	v := NewVirtual()
	v.OpenDriver()
	port := openVirtualPort(t, v, 0x1, 256)
	note, err := v.SetNotification(port, 1)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan vxlapi.WaitResult)
	go func() {
		res, _ := v.Wait(note, 5*time.Second)
		done <- res
	}()
	v.ClosePort(port)
	select {
	case res := <-done:
		if res != vxlapi.WAIT_FAILED {
			t.Errorf("Wait after ClosePort = %s", res)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after ClosePort")
	}
}

func TestVirtualFailureInjection(t *testing.T) {
	v := NewVirtual()
	v.Fail("xlOpenDriver", vxlapi.ERR_CANNOT_OPEN_DRIVER)
	if err := v.OpenDriver(); !errors.Is(err, vxlapi.ERR_CANNOT_OPEN_DRIVER) {
		t.Fatalf("OpenDriver = %v", err)
	}
	v.Fail("xlOpenDriver", vxlapi.SUCCESS)
	if err := v.OpenDriver(); err != nil {
		t.Fatalf("OpenDriver after clearing = %v", err)
	}
	if n := v.Calls("xlOpenDriver"); n != 2 {
		t.Errorf("Calls = %d", n)
	}
	v.Fail("xlGetChannelMask", vxlapi.ERROR)
	if mask := v.GetChannelMask(vxlapi.Binding{HwType: vxlapi.HWTYPE_VIRTUAL}); mask != 0 {
		t.Errorf("GetChannelMask with failure = 0x%X", uint64(mask))
	}
}
