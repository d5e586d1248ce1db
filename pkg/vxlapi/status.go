package vxlapi

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by Load on platforms without the XL library.
var ErrNotSupported = errors.New("vxlapi: the XL Driver Library is only available on 64-bit Windows")

// Status is the XLstatus returned by every XL library call.
type Status int16

const (
	SUCCESS                      Status = 0
	PENDING                      Status = 1
	ERR_QUEUE_IS_EMPTY           Status = 10
	ERR_QUEUE_IS_FULL            Status = 11
	ERR_TX_NOT_POSSIBLE          Status = 12
	ERR_NO_LICENSE               Status = 14
	ERR_WRONG_PARAMETER          Status = 101
	ERR_TWICE_REGISTER           Status = 110
	ERR_INVALID_CHAN_INDEX       Status = 111
	ERR_INVALID_ACCESS           Status = 112
	ERR_PORT_IS_OFFLINE          Status = 113
	ERR_CHAN_IS_ONLINE           Status = 116
	ERR_NOT_IMPLEMENTED          Status = 117
	ERR_INVALID_PORT             Status = 118
	ERR_HW_NOT_READY             Status = 120
	ERR_CMD_TIMEOUT              Status = 121
	ERR_CMD_HANDLING             Status = 122
	ERR_HW_NOT_PRESENT           Status = 129
	ERR_NOTIFY_ALREADY_ACTIVE    Status = 131
	ERR_INVALID_TAG              Status = 132
	ERR_INVALID_RESERVED_FLD     Status = 133
	ERR_INVALID_SIZE             Status = 134
	ERR_INSUFFICIENT_BUFFER      Status = 135
	ERR_ERROR_CRC                Status = 136
	ERR_BAD_EXE_FORMAT           Status = 137
	ERR_NO_SYSTEM_RESOURCES      Status = 138
	ERR_NOT_FOUND                Status = 139
	ERR_INVALID_ADDRESS          Status = 140
	ERR_REQ_NOT_ACCEP            Status = 141
	ERR_INVALID_LEVEL            Status = 142
	ERR_NO_DATA_DETECTED         Status = 143
	ERR_INTERNAL_ERROR           Status = 144
	ERR_UNEXP_NET_ERR            Status = 145
	ERR_INVALID_USER_BUFFER      Status = 146
	ERR_INVALID_PORT_ACCESS_TYPE Status = 147
	ERR_NO_RESOURCES             Status = 152
	ERR_WRONG_CHIP_TYPE          Status = 153
	ERR_WRONG_COMMAND            Status = 154
	ERR_INVALID_HANDLE           Status = 155
	ERR_RESERVED_NOT_ZERO        Status = 157
	ERR_INIT_ACCESS_MISSING      Status = 158
	ERR_CANNOT_OPEN_DRIVER       Status = 201
	ERR_WRONG_BUS_TYPE           Status = 202
	ERR_DLL_NOT_FOUND            Status = 203
	ERR_INVALID_CHANNEL_MASK     Status = 204
	ERR_NOT_SUPPORTED            Status = 205
	ERR_CONNECTION_BROKEN        Status = 210
	ERR_CONNECTION_CLOSED        Status = 211
	ERR_INVALID_STREAM_NAME      Status = 212
	ERR_CONNECTION_FAILED        Status = 213
	ERR_STREAM_NOT_FOUND         Status = 214
	ERR_STREAM_NOT_CONNECTED     Status = 215
	ERR_QUEUE_OVERRUN            Status = 216
	ERROR                        Status = 255
)

var statusNames = map[Status]string{
	SUCCESS:                      "XL_SUCCESS",
	PENDING:                      "XL_PENDING",
	ERR_QUEUE_IS_EMPTY:           "XL_ERR_QUEUE_IS_EMPTY",
	ERR_QUEUE_IS_FULL:            "XL_ERR_QUEUE_IS_FULL",
	ERR_TX_NOT_POSSIBLE:          "XL_ERR_TX_NOT_POSSIBLE",
	ERR_NO_LICENSE:               "XL_ERR_NO_LICENSE",
	ERR_WRONG_PARAMETER:          "XL_ERR_WRONG_PARAMETER",
	ERR_TWICE_REGISTER:           "XL_ERR_TWICE_REGISTER",
	ERR_INVALID_CHAN_INDEX:       "XL_ERR_INVALID_CHAN_INDEX",
	ERR_INVALID_ACCESS:           "XL_ERR_INVALID_ACCESS",
	ERR_PORT_IS_OFFLINE:          "XL_ERR_PORT_IS_OFFLINE",
	ERR_CHAN_IS_ONLINE:           "XL_ERR_CHAN_IS_ONLINE",
	ERR_NOT_IMPLEMENTED:          "XL_ERR_NOT_IMPLEMENTED",
	ERR_INVALID_PORT:             "XL_ERR_INVALID_PORT",
	ERR_HW_NOT_READY:             "XL_ERR_HW_NOT_READY",
	ERR_CMD_TIMEOUT:              "XL_ERR_CMD_TIMEOUT",
	ERR_CMD_HANDLING:             "XL_ERR_CMD_HANDLING",
	ERR_HW_NOT_PRESENT:           "XL_ERR_HW_NOT_PRESENT",
	ERR_NOTIFY_ALREADY_ACTIVE:    "XL_ERR_NOTIFY_ALREADY_ACTIVE",
	ERR_INVALID_TAG:              "XL_ERR_INVALID_TAG",
	ERR_INVALID_RESERVED_FLD:     "XL_ERR_INVALID_RESERVED_FLD",
	ERR_INVALID_SIZE:             "XL_ERR_INVALID_SIZE",
	ERR_INSUFFICIENT_BUFFER:      "XL_ERR_INSUFFICIENT_BUFFER",
	ERR_ERROR_CRC:                "XL_ERR_ERROR_CRC",
	ERR_BAD_EXE_FORMAT:           "XL_ERR_BAD_EXE_FORMAT",
	ERR_NO_SYSTEM_RESOURCES:      "XL_ERR_NO_SYSTEM_RESOURCES",
	ERR_NOT_FOUND:                "XL_ERR_NOT_FOUND",
	ERR_INVALID_ADDRESS:          "XL_ERR_INVALID_ADDRESS",
	ERR_REQ_NOT_ACCEP:            "XL_ERR_REQ_NOT_ACCEP",
	ERR_INVALID_LEVEL:            "XL_ERR_INVALID_LEVEL",
	ERR_NO_DATA_DETECTED:         "XL_ERR_NO_DATA_DETECTED",
	ERR_INTERNAL_ERROR:           "XL_ERR_INTERNAL_ERROR",
	ERR_UNEXP_NET_ERR:            "XL_ERR_UNEXP_NET_ERR",
	ERR_INVALID_USER_BUFFER:      "XL_ERR_INVALID_USER_BUFFER",
	ERR_INVALID_PORT_ACCESS_TYPE: "XL_ERR_INVALID_PORT_ACCESS_TYPE",
	ERR_NO_RESOURCES:             "XL_ERR_NO_RESOURCES",
	ERR_WRONG_CHIP_TYPE:          "XL_ERR_WRONG_CHIP_TYPE",
	ERR_WRONG_COMMAND:            "XL_ERR_WRONG_COMMAND",
	ERR_INVALID_HANDLE:           "XL_ERR_INVALID_HANDLE",
	ERR_RESERVED_NOT_ZERO:        "XL_ERR_RESERVED_NOT_ZERO",
	ERR_INIT_ACCESS_MISSING:      "XL_ERR_INIT_ACCESS_MISSING",
	ERR_CANNOT_OPEN_DRIVER:       "XL_ERR_CANNOT_OPEN_DRIVER",
	ERR_WRONG_BUS_TYPE:           "XL_ERR_WRONG_BUS_TYPE",
	ERR_DLL_NOT_FOUND:            "XL_ERR_DLL_NOT_FOUND",
	ERR_INVALID_CHANNEL_MASK:     "XL_ERR_INVALID_CHANNEL_MASK",
	ERR_NOT_SUPPORTED:            "XL_ERR_NOT_SUPPORTED",
	ERR_CONNECTION_BROKEN:        "XL_ERR_CONNECTION_BROKEN",
	ERR_CONNECTION_CLOSED:        "XL_ERR_CONNECTION_CLOSED",
	ERR_INVALID_STREAM_NAME:      "XL_ERR_INVALID_STREAM_NAME",
	ERR_CONNECTION_FAILED:        "XL_ERR_CONNECTION_FAILED",
	ERR_STREAM_NOT_FOUND:         "XL_ERR_STREAM_NOT_FOUND",
	ERR_STREAM_NOT_CONNECTED:     "XL_ERR_STREAM_NOT_CONNECTED",
	ERR_QUEUE_OVERRUN:            "XL_ERR_QUEUE_OVERRUN",
	ERROR:                        "XL_ERROR",
}

// String returns the symbolic vxlapi.h name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("XL_STATUS_%d", int16(s))
}

// Error makes a bare Status usable as a sentinel with errors.Is.
func (s Status) Error() string {
	return fmt.Sprintf("%s (%d)", s.String(), int16(s))
}

// Error is returned for every call that did not report XL_SUCCESS.
type Error struct {
	Func   string
	Status Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Func, e.Status.String(), int16(e.Status))
}

func (e *Error) Unwrap() error {
	return e.Status
}

// NewError returns nil for XL_SUCCESS and a labelled *Error otherwise.
func NewError(fn string, s Status) error {
	if s == SUCCESS {
		return nil
	}
	return &Error{Func: fn, Status: s}
}

func checkErr(fn string, r1 uintptr) error {
	return NewError(fn, Status(int16(r1)))
}
