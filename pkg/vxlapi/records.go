package vxlapi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sizes of the packed records shared with the driver.
const (
	EventSize         = 48
	ChannelConfigSize = 227
	DriverConfigSize  = 48 + CONFIG_MAX_CHANNELS*ChannelConfigSize
)

type EventTag uint8

const (
	NO_COMMAND               EventTag = 0
	RECEIVE_MSG              EventTag = 1
	CHIP_STATE               EventTag = 4
	TRANSCEIVER              EventTag = 6
	TIMER                    EventTag = 8
	TRANSMIT_MSG             EventTag = 10
	SYNC_PULSE               EventTag = 11
	APPLICATION_NOTIFICATION EventTag = 15
)

func (t EventTag) String() string {
	switch t {
	case NO_COMMAND:
		return "XL_NO_COMMAND"
	case RECEIVE_MSG:
		return "XL_RECEIVE_MSG"
	case CHIP_STATE:
		return "XL_CHIP_STATE"
	case TRANSCEIVER:
		return "XL_TRANSCEIVER"
	case TIMER:
		return "XL_TIMER"
	case TRANSMIT_MSG:
		return "XL_TRANSMIT_MSG"
	case SYNC_PULSE:
		return "XL_SYNC_PULSE"
	case APPLICATION_NOTIFICATION:
		return "XL_APPLICATION_NOTIFICATION"
	default:
		return fmt.Sprintf("XL_TAG_%d", uint8(t))
	}
}

// CAN message flags (s_xl_can_msg.flags).
const (
	CAN_MSG_FLAG_ERROR_FRAME  uint16 = 0x01
	CAN_MSG_FLAG_OVERRUN      uint16 = 0x02
	CAN_MSG_FLAG_NERR         uint16 = 0x04
	CAN_MSG_FLAG_WAKEUP       uint16 = 0x08
	CAN_MSG_FLAG_REMOTE_FRAME uint16 = 0x10
	CAN_MSG_FLAG_TX_COMPLETED uint16 = 0x40
	CAN_MSG_FLAG_TX_REQUEST   uint16 = 0x80
)

// CanMsg is tagData.msg of an XLevent.
type CanMsg struct {
	ID    uint32
	Flags uint16
	DLC   uint16
	Data  [MAX_MSG_LEN]byte
}

// Event is an XLevent carrying a CAN message.
type Event struct {
	Tag        EventTag
	ChanIndex  uint8
	TransID    uint16
	PortHandle uint16
	Flags      uint8
	TimeStamp  uint64
	Msg        CanMsg
}

// Payload returns the first DLC bytes of the message.
func (e *Event) Payload() ([]byte, error) {
	if e.Msg.DLC > MAX_MSG_LEN {
		return nil, fmt.Errorf("invalid dlc %d", e.Msg.DLC)
	}
	out := make([]byte, e.Msg.DLC)
	copy(out, e.Msg.Data[:e.Msg.DLC])
	return out, nil
}

// MarshalTo writes the 48 byte XLevent layout into b.
func (e *Event) MarshalTo(b []byte) error {
	if len(b) < EventSize {
		return errors.New("event buffer too small")
	}
	for i := range b[:EventSize] {
		b[i] = 0
	}
	b[0] = byte(e.Tag)
	b[1] = e.ChanIndex
	binary.LittleEndian.PutUint16(b[2:], e.TransID)
	binary.LittleEndian.PutUint16(b[4:], e.PortHandle)
	b[6] = e.Flags
	binary.LittleEndian.PutUint64(b[8:], e.TimeStamp)
	binary.LittleEndian.PutUint32(b[16:], e.Msg.ID)
	binary.LittleEndian.PutUint16(b[20:], e.Msg.Flags)
	binary.LittleEndian.PutUint16(b[22:], e.Msg.DLC)
	copy(b[32:40], e.Msg.Data[:])
	return nil
}

// UnmarshalBinary reads an XLevent from b.
func (e *Event) UnmarshalBinary(b []byte) error {
	if len(b) < EventSize {
		return fmt.Errorf("event record too short: %d bytes", len(b))
	}
	e.Tag = EventTag(b[0])
	e.ChanIndex = b[1]
	e.TransID = binary.LittleEndian.Uint16(b[2:])
	e.PortHandle = binary.LittleEndian.Uint16(b[4:])
	e.Flags = b[6]
	e.TimeStamp = binary.LittleEndian.Uint64(b[8:])
	e.Msg.ID = binary.LittleEndian.Uint32(b[16:])
	e.Msg.Flags = binary.LittleEndian.Uint16(b[20:])
	e.Msg.DLC = binary.LittleEndian.Uint16(b[22:])
	copy(e.Msg.Data[:], b[32:40])
	return nil
}

// MarshalEvents lays out events back to back as the driver expects an
// XLevent array.
func MarshalEvents(events []Event) ([]byte, error) {
	buf := make([]byte, len(events)*EventSize)
	for i := range events {
		if err := events[i].MarshalTo(buf[i*EventSize:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ChannelConfig is one XLchannelConfig entry of the driver configuration.
type ChannelConfig struct {
	Name                   string
	HwType                 HwType
	HwIndex                uint32
	HwChannel              uint32
	TransceiverType        uint16
	TransceiverState       uint16
	ConfigError            uint16
	ChannelIndex           uint8
	ChannelMask            Access
	ChannelCapabilities    uint32
	ChannelBusCapabilities uint32
	IsOnBus                bool
	ConnectedBusType       BusType
	BusParamsType          BusType
	Bitrate                uint32
	DriverVersion          uint32
	InterfaceVersion       uint32
	SerialNumber           uint32
	ArticleNumber          uint32
	TransceiverName        string
}

// Binding returns the hardware triple of the channel.
func (c ChannelConfig) Binding() Binding {
	return Binding{HwType: c.HwType, HwIndex: c.HwIndex, HwChannel: c.HwChannel}
}

func (c ChannelConfig) String() string {
	return fmt.Sprintf("%s (%s %d/%d mask 0x%X)", c.Name, c.HwType, c.HwIndex, c.HwChannel, uint64(c.ChannelMask))
}

// byte offsets inside the packed XLchannelConfig
const (
	chOffName                   = 0
	chOffHwType                 = 32
	chOffHwIndex                = 33
	chOffHwChannel              = 34
	chOffTransceiverType        = 35
	chOffTransceiverState       = 37
	chOffConfigError            = 39
	chOffChannelIndex           = 41
	chOffChannelMask            = 42
	chOffChannelCapabilities    = 50
	chOffChannelBusCapabilities = 54
	chOffIsOnBus                = 58
	chOffConnectedBusType       = 59
	chOffBusParams              = 63
	chOffDriverVersion          = 99
	chOffInterfaceVersion       = 103
	chOffSerialNumber           = 147
	chOffArticleNumber          = 151
	chOffTransceiverName        = 155
)

// UnmarshalBinary decodes a packed XLchannelConfig.
func (c *ChannelConfig) UnmarshalBinary(b []byte) error {
	if len(b) < ChannelConfigSize {
		return fmt.Errorf("channel config too short: %d bytes", len(b))
	}
	le := binary.LittleEndian
	c.Name = cString(b[chOffName : chOffName+MAX_LENGTH+1])
	c.HwType = HwType(b[chOffHwType])
	c.HwIndex = uint32(b[chOffHwIndex])
	c.HwChannel = uint32(b[chOffHwChannel])
	c.TransceiverType = le.Uint16(b[chOffTransceiverType:])
	c.TransceiverState = le.Uint16(b[chOffTransceiverState:])
	c.ConfigError = le.Uint16(b[chOffConfigError:])
	c.ChannelIndex = b[chOffChannelIndex]
	c.ChannelMask = Access(le.Uint64(b[chOffChannelMask:]))
	c.ChannelCapabilities = le.Uint32(b[chOffChannelCapabilities:])
	c.ChannelBusCapabilities = le.Uint32(b[chOffChannelBusCapabilities:])
	c.IsOnBus = b[chOffIsOnBus] != 0
	c.ConnectedBusType = BusType(le.Uint32(b[chOffConnectedBusType:]))
	c.BusParamsType = BusType(le.Uint32(b[chOffBusParams:]))
	if c.BusParamsType == BUS_TYPE_CAN {
		c.Bitrate = le.Uint32(b[chOffBusParams+4:])
	}
	c.DriverVersion = le.Uint32(b[chOffDriverVersion:])
	c.InterfaceVersion = le.Uint32(b[chOffInterfaceVersion:])
	c.SerialNumber = le.Uint32(b[chOffSerialNumber:])
	c.ArticleNumber = le.Uint32(b[chOffArticleNumber:])
	c.TransceiverName = cString(b[chOffTransceiverName : chOffTransceiverName+MAX_LENGTH+1])
	return nil
}

// DriverConfig is the decoded XLdriverConfig.
type DriverConfig struct {
	DLLVersion uint32
	Channels   []ChannelConfig
}

// Version returns the decoded DLL version.
func (d *DriverConfig) Version() Version {
	return ParseVersion(d.DLLVersion)
}

// Channel returns the channel matching the binding.
func (d *DriverConfig) Channel(b Binding) (ChannelConfig, bool) {
	for _, ch := range d.Channels {
		if ch.Binding() == b {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// UnmarshalBinary decodes a packed XLdriverConfig.
func (d *DriverConfig) UnmarshalBinary(b []byte) error {
	if len(b) < DriverConfigSize {
		return fmt.Errorf("driver config too short: %d bytes", len(b))
	}
	d.DLLVersion = binary.LittleEndian.Uint32(b[0:])
	count := binary.LittleEndian.Uint32(b[4:])
	if count > CONFIG_MAX_CHANNELS {
		return fmt.Errorf("driver reported %d channels, max is %d", count, CONFIG_MAX_CHANNELS)
	}
	d.Channels = make([]ChannelConfig, count)
	for i := range d.Channels {
		off := 48 + i*ChannelConfigSize
		if err := d.Channels[i].UnmarshalBinary(b[off : off+ChannelConfigSize]); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

func cString(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
