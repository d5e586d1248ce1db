package goxl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/roffe/goxl/pkg/vxlapi"
)

const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

type Frame struct {
	Identifier uint32
	Extended   bool
	Remote     bool
	Data       []byte
	Direction  Direction
	// Timestamp is the driver time stamp in nanoseconds, zero for frames not yet sent.
	Timestamp uint64
	Channel   uint8
}

func NewFrame(identifier uint32, data []byte, dir Direction) *Frame {
	return &Frame{
		Identifier: identifier,
		Data:       data,
		Direction:  dir,
		Extended:   identifier > MaxStandardID,
	}
}

func NewExtendedFrame(identifier uint32, data []byte, dir Direction) *Frame {
	f := NewFrame(identifier, data, dir)
	f.Extended = true
	return f
}

func (f *Frame) Length() int {
	return len(f.Data)
}

// Validate checks identifier range and payload length.
func (f *Frame) Validate() error {
	limit := uint32(MaxStandardID)
	if f.Extended {
		limit = MaxExtendedID
	}
	if f.Identifier > limit {
		return &ParseError{Field: "identifier", Input: fmt.Sprintf("0x%X", f.Identifier), Reason: fmt.Sprintf("above 0x%X", limit)}
	}
	if len(f.Data) > vxlapi.MAX_MSG_LEN {
		return &ParseError{Field: "payload", Input: f.HexData(), Reason: fmt.Sprintf("%d bytes, at most %d allowed", len(f.Data), vxlapi.MAX_MSG_LEN)}
	}
	return nil
}

// HexData returns the payload as space separated uppercase hex pairs.
func (f *Frame) HexData() string {
	var out strings.Builder
	for i, b := range f.Data {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(fmt.Sprintf("%02X", b))
	}
	return out.String()
}

func (f *Frame) event() vxlapi.Event {
	ev := vxlapi.Event{Tag: vxlapi.TRANSMIT_MSG}
	ev.Msg.ID = f.Identifier
	if f.Extended {
		ev.Msg.ID |= vxlapi.CAN_EXT_MSG_ID
	}
	if f.Remote {
		ev.Msg.Flags |= vxlapi.CAN_MSG_FLAG_REMOTE_FRAME
	}
	ev.Msg.DLC = uint16(copy(ev.Msg.Data[:], f.Data))
	return ev
}

func frameFromEvent(ev *vxlapi.Event) (*Frame, error) {
	data, err := ev.Payload()
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Identifier: ev.Msg.ID &^ vxlapi.CAN_EXT_MSG_ID,
		Extended:   ev.Msg.ID&vxlapi.CAN_EXT_MSG_ID != 0,
		Remote:     ev.Msg.Flags&vxlapi.CAN_MSG_FLAG_REMOTE_FRAME != 0,
		Data:       data,
		Direction:  Incoming,
		Timestamp:  ev.TimeStamp,
		Channel:    ev.ChanIndex,
	}
	if ev.Msg.Flags&vxlapi.CAN_MSG_FLAG_TX_COMPLETED != 0 {
		f.Direction = Outgoing
	}
	return f, nil
}

// ParseIdentifier parses a hexadecimal CAN identifier with optional 0x
// prefix. Values above 0x7FF are extended identifiers.
func ParseIdentifier(s string) (uint32, bool, error) {
	digits := strings.TrimSpace(s)
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	if digits == "" {
		return 0, false, &ParseError{Field: "identifier", Input: s, Reason: "empty"}
	}
	id, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, false, &ParseError{Field: "identifier", Input: s, Reason: "not a hexadecimal number"}
	}
	if id > MaxExtendedID {
		return 0, false, &ParseError{Field: "identifier", Input: s, Reason: fmt.Sprintf("above 0x%X", MaxExtendedID)}
	}
	return uint32(id), id > MaxStandardID, nil
}

// ParsePayload turns hex text like "DE AD BE EF" or "deadbeef" into bytes.
// Whitespace is ignored.
func ParsePayload(s string) ([]byte, error) {
	digits := strings.Join(strings.Fields(s), "")
	if len(digits)%2 != 0 {
		return nil, &ParseError{Field: "payload", Input: s, Reason: "odd number of hex digits"}
	}
	if len(digits)/2 > vxlapi.MAX_MSG_LEN {
		return nil, &ParseError{Field: "payload", Input: s, Reason: fmt.Sprintf("%d bytes, at most %d allowed", len(digits)/2, vxlapi.MAX_MSG_LEN)}
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		b, err := strconv.ParseUint(digits[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, &ParseError{Field: "payload", Input: s, Reason: fmt.Sprintf("%q is not a hex byte", digits[i*2:i*2+2])}
		}
		out[i] = byte(b)
	}
	return out, nil
}

var (
	yellow = color.New(color.FgHiBlue).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (f *Frame) prefix() string {
	if f.Direction == Outgoing {
		return "<o> || "
	}
	return "<i> || "
}

func (f *Frame) id() string {
	if f.Extended {
		return fmt.Sprintf("0x%08X", f.Identifier)
	}
	return fmt.Sprintf("0x%03X", f.Identifier)
}

func (f *Frame) binData() string {
	var binView strings.Builder
	for i, b := range f.Data {
		if i > 0 {
			binView.WriteString(" ")
		}
		binView.WriteString(fmt.Sprintf("%08b", b))
	}
	return binView.String()
}

func (f *Frame) String() string {
	var out strings.Builder
	out.WriteString(f.prefix())
	out.WriteString(f.id() + " || ")
	out.WriteString(strconv.Itoa(len(f.Data)) + " || ")
	out.WriteString(fmt.Sprintf("%-23s", f.HexData()))
	out.WriteString(" || ")
	out.WriteString(fmt.Sprintf("%-71s", f.binData()))
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(f.Data))
	return out.String()
}

func (f *Frame) ColorString() string {
	var out strings.Builder
	out.WriteString(f.prefix())
	out.WriteString(green(f.id()) + " || ")
	out.WriteString(strconv.Itoa(len(f.Data)) + " || ")
	out.WriteString(fmt.Sprintf("%-23s", f.HexData()))
	out.WriteString(" || ")
	out.WriteString(red(fmt.Sprintf("%-71s", f.binData())))
	out.WriteString(" || ")
	out.WriteString(yellow(onlyPrintable(f.Data)))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
