package vxlapi

import "fmt"

// Access is an XLaccess channel bit mask.
type Access uint64

// PortHandle is an XLportHandle returned by xlOpenPort.
type PortHandle int32

const INVALID_PORTHANDLE PortHandle = -1

// Notification is the OS event handle armed by xlSetNotification.
type Notification uintptr

const (
	INTERFACE_VERSION    uint32 = 3
	INTERFACE_VERSION_V4 uint32 = 4

	CONFIG_MAX_CHANNELS = 64
	MAX_LENGTH          = 31
	MAX_MSG_LEN         = 8

	ACTIVATE_NONE        uint32 = 0
	ACTIVATE_RESET_CLOCK uint32 = 8

	// Bit 31 of a message id marks an extended (29 bit) identifier.
	CAN_EXT_MSG_ID uint32 = 0x80000000
)

type BusType uint32

const (
	BUS_TYPE_NONE     BusType = 0x00000000
	BUS_TYPE_CAN      BusType = 0x00000001
	BUS_TYPE_LIN      BusType = 0x00000002
	BUS_TYPE_FLEXRAY  BusType = 0x00000004
	BUS_TYPE_AFDX     BusType = 0x00000008
	BUS_TYPE_MOST     BusType = 0x00000010
	BUS_TYPE_DAIO     BusType = 0x00000040
	BUS_TYPE_J1708    BusType = 0x00000100
	BUS_TYPE_KLINE    BusType = 0x00000800
	BUS_TYPE_ETHERNET BusType = 0x00001000
	BUS_TYPE_A429     BusType = 0x00002000
)

func (b BusType) String() string {
	switch b {
	case BUS_TYPE_NONE:
		return "NONE"
	case BUS_TYPE_CAN:
		return "CAN"
	case BUS_TYPE_LIN:
		return "LIN"
	case BUS_TYPE_FLEXRAY:
		return "FLEXRAY"
	case BUS_TYPE_AFDX:
		return "AFDX"
	case BUS_TYPE_MOST:
		return "MOST"
	case BUS_TYPE_DAIO:
		return "DAIO"
	case BUS_TYPE_J1708:
		return "J1708"
	case BUS_TYPE_KLINE:
		return "KLINE"
	case BUS_TYPE_ETHERNET:
		return "ETHERNET"
	case BUS_TYPE_A429:
		return "A429"
	default:
		return fmt.Sprintf("BUS_TYPE_0x%X", uint32(b))
	}
}

type HwType uint32

const (
	HWTYPE_NONE       HwType = 0
	HWTYPE_VIRTUAL    HwType = 1
	HWTYPE_CANCARDX   HwType = 2
	HWTYPE_CANAC2PCI  HwType = 6
	HWTYPE_CANCARDY   HwType = 12
	HWTYPE_CANCARDXL  HwType = 15
	HWTYPE_CANCASEXL  HwType = 21
	HWTYPE_CANBOARDXL HwType = 25
	HWTYPE_VN2600     HwType = 29
	HWTYPE_VN3300     HwType = 37
	HWTYPE_VN3600     HwType = 39
	HWTYPE_VN7600     HwType = 41
	HWTYPE_CANCARDXLE HwType = 43
	HWTYPE_VN8900     HwType = 45
	HWTYPE_VN2640     HwType = 47
	HWTYPE_VN1610     HwType = 55
	HWTYPE_VN1630     HwType = 57
	HWTYPE_VN1640     HwType = 59
	HWTYPE_VN8970     HwType = 61
	HWTYPE_VN1611     HwType = 63
	HWTYPE_VN5610     HwType = 65
	HWTYPE_VN5620     HwType = 66
	HWTYPE_VN7570     HwType = 67
	HWTYPE_IPCLIENT   HwType = 69
	HWTYPE_IPSERVER   HwType = 71
	HWTYPE_VX1121     HwType = 73
	HWTYPE_VX1131     HwType = 75
	HWTYPE_VT6204     HwType = 77
	HWTYPE_VN1630_LOG HwType = 79
	HWTYPE_VN7610     HwType = 81
	HWTYPE_VN7572     HwType = 83
	HWTYPE_VN8972     HwType = 85
	HWTYPE_VN0601     HwType = 87
	HWTYPE_VN5640     HwType = 89
	HWTYPE_VX0312     HwType = 91
	HWTYPE_VH6501     HwType = 94
	HWTYPE_VN8800     HwType = 95
	HWTYPE_VN5610A    HwType = 101
	HWTYPE_VN7640     HwType = 102
	HWTYPE_VX1135     HwType = 104
	HWTYPE_VN4610     HwType = 105
	HWTYPE_VN5430     HwType = 109
	HWTYPE_VN1530     HwType = 112
	HWTYPE_VN1531     HwType = 113
)

var hwTypeNames = map[HwType]string{
	HWTYPE_NONE:       "XL_HWTYPE_NONE",
	HWTYPE_VIRTUAL:    "XL_HWTYPE_VIRTUAL",
	HWTYPE_CANCARDX:   "XL_HWTYPE_CANCARDX",
	HWTYPE_CANAC2PCI:  "XL_HWTYPE_CANAC2PCI",
	HWTYPE_CANCARDY:   "XL_HWTYPE_CANCARDY",
	HWTYPE_CANCARDXL:  "XL_HWTYPE_CANCARDXL",
	HWTYPE_CANCASEXL:  "XL_HWTYPE_CANCASEXL",
	HWTYPE_CANBOARDXL: "XL_HWTYPE_CANBOARDXL",
	HWTYPE_VN2600:     "XL_HWTYPE_VN2600",
	HWTYPE_VN3300:     "XL_HWTYPE_VN3300",
	HWTYPE_VN3600:     "XL_HWTYPE_VN3600",
	HWTYPE_VN7600:     "XL_HWTYPE_VN7600",
	HWTYPE_CANCARDXLE: "XL_HWTYPE_CANCARDXLE",
	HWTYPE_VN8900:     "XL_HWTYPE_VN8900",
	HWTYPE_VN2640:     "XL_HWTYPE_VN2640",
	HWTYPE_VN1610:     "XL_HWTYPE_VN1610",
	HWTYPE_VN1630:     "XL_HWTYPE_VN1630",
	HWTYPE_VN1640:     "XL_HWTYPE_VN1640",
	HWTYPE_VN8970:     "XL_HWTYPE_VN8970",
	HWTYPE_VN1611:     "XL_HWTYPE_VN1611",
	HWTYPE_VN5610:     "XL_HWTYPE_VN5610",
	HWTYPE_VN5620:     "XL_HWTYPE_VN5620",
	HWTYPE_VN7570:     "XL_HWTYPE_VN7570",
	HWTYPE_IPCLIENT:   "XL_HWTYPE_IPCLIENT",
	HWTYPE_IPSERVER:   "XL_HWTYPE_IPSERVER",
	HWTYPE_VX1121:     "XL_HWTYPE_VX1121",
	HWTYPE_VX1131:     "XL_HWTYPE_VX1131",
	HWTYPE_VT6204:     "XL_HWTYPE_VT6204",
	HWTYPE_VN1630_LOG: "XL_HWTYPE_VN1630_LOG",
	HWTYPE_VN7610:     "XL_HWTYPE_VN7610",
	HWTYPE_VN7572:     "XL_HWTYPE_VN7572",
	HWTYPE_VN8972:     "XL_HWTYPE_VN8972",
	HWTYPE_VN0601:     "XL_HWTYPE_VN0601",
	HWTYPE_VN5640:     "XL_HWTYPE_VN5640",
	HWTYPE_VX0312:     "XL_HWTYPE_VX0312",
	HWTYPE_VH6501:     "XL_HWTYPE_VH6501",
	HWTYPE_VN8800:     "XL_HWTYPE_VN8800",
	HWTYPE_VN5610A:    "XL_HWTYPE_VN5610A",
	HWTYPE_VN7640:     "XL_HWTYPE_VN7640",
	HWTYPE_VX1135:     "XL_HWTYPE_VX1135",
	HWTYPE_VN4610:     "XL_HWTYPE_VN4610",
	HWTYPE_VN5430:     "XL_HWTYPE_VN5430",
	HWTYPE_VN1530:     "XL_HWTYPE_VN1530",
	HWTYPE_VN1531:     "XL_HWTYPE_VN1531",
}

func (h HwType) String() string {
	if name, ok := hwTypeNames[h]; ok {
		return name
	}
	return fmt.Sprintf("XL_HWTYPE_%d", uint32(h))
}

// Binding is the hardware channel an application channel is mapped to in
// the Vector Hardware Config.
type Binding struct {
	HwType    HwType
	HwIndex   uint32
	HwChannel uint32
}

func (b Binding) String() string {
	return fmt.Sprintf("%s index %d channel %d", b.HwType, b.HwIndex, b.HwChannel)
}

// Configured reports whether the application channel is assigned to hardware.
func (b Binding) Configured() bool {
	return b.HwType != HWTYPE_NONE
}

// WaitResult is the value returned by WaitForSingleObject.
type WaitResult uint32

const (
	WAIT_OBJECT_0  WaitResult = 0x00000000
	WAIT_ABANDONED WaitResult = 0x00000080
	WAIT_TIMEOUT   WaitResult = 0x00000102
	WAIT_FAILED    WaitResult = 0xFFFFFFFF
)

func (w WaitResult) String() string {
	switch w {
	case WAIT_OBJECT_0:
		return "WAIT_OBJECT_0"
	case WAIT_ABANDONED:
		return "WAIT_ABANDONED"
	case WAIT_TIMEOUT:
		return "WAIT_TIMEOUT"
	case WAIT_FAILED:
		return "WAIT_FAILED"
	default:
		return fmt.Sprintf("0x%08X", uint32(w))
	}
}

// Version is the decoded dllVersion of the driver configuration.
type Version struct {
	Major, Minor, Build uint32
}

// ParseVersion splits an encoded version into major (bits 31-24),
// minor (bits 23-16) and build (bits 15-0).
func ParseVersion(v uint32) Version {
	return Version{
		Major: (v >> 24) & 0xFF,
		Minor: (v >> 16) & 0xFF,
		Build: v & 0xFFFF,
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}
