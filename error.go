package goxl

import (
	"errors"
	"fmt"

	"github.com/roffe/goxl/pkg/vxlapi"
)

type unrecoverableError struct {
	error
}

func (e unrecoverableError) Error() string {
	if e.error == nil {
		return "unrecoverable error"
	}
	return e.error.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.error
}

// Unrecoverable wraps an error in `unrecoverableError` struct
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable reports whether the session can continue after err
func IsRecoverable(err error) bool {
	return Classify(err) != ClassFatal
}

var (
	ErrNotConfigured        = errors.New("driver is not open, run the configuration first")
	ErrChannelNotConfigured = errors.New("application channel is not assigned to a hardware channel")
	ErrZeroChannelMask      = errors.New("channel mask is zero")
	ErrNotConnected         = errors.New("port is not open, initialize first")
	ErrConnected            = errors.New("port is already open")
	ErrAlreadyListening     = errors.New("listener is already running")
	ErrWaitFailed           = errors.New("wait for notification failed")
	ErrClosed               = errors.New("session closed")
)

// Class groups failures by what the user has to do about them.
type Class int

const (
	ClassNone Class = iota
	// ClassTransient failures can be retried as is.
	ClassTransient
	// ClassConfiguration failures need a new binding or a new initialization.
	ClassConfiguration
	// ClassFatal failures leave the library unusable until restart.
	ClassFatal
	// ClassInput failures are rejected user input, nothing reached the driver.
	ClassInput
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassConfiguration:
		return "configuration"
	case ClassFatal:
		return "fatal"
	case ClassInput:
		return "input"
	default:
		return "unknown"
	}
}

var statusClass = map[vxlapi.Status]Class{
	vxlapi.PENDING:                ClassTransient,
	vxlapi.ERR_QUEUE_IS_FULL:      ClassTransient,
	vxlapi.ERR_TX_NOT_POSSIBLE:    ClassTransient,
	vxlapi.ERR_HW_NOT_READY:       ClassTransient,
	vxlapi.ERR_CMD_TIMEOUT:        ClassTransient,
	vxlapi.ERR_CMD_HANDLING:       ClassTransient,
	vxlapi.ERR_QUEUE_OVERRUN:      ClassTransient,
	vxlapi.ERR_NO_RESOURCES:       ClassTransient,
	vxlapi.ERR_DLL_NOT_FOUND:      ClassFatal,
	vxlapi.ERR_CANNOT_OPEN_DRIVER: ClassFatal,
	vxlapi.ERR_BAD_EXE_FORMAT:     ClassFatal,
	vxlapi.ERR_INTERNAL_ERROR:     ClassFatal,
	vxlapi.ERR_CONNECTION_BROKEN:  ClassFatal,
	vxlapi.ERR_CONNECTION_CLOSED:  ClassFatal,
}

// Classify maps an error returned by this package to a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ClassInput
	}
	var ue unrecoverableError
	if errors.As(err, &ue) {
		return ClassFatal
	}
	if errors.Is(err, vxlapi.ErrNotSupported) {
		return ClassFatal
	}
	var status vxlapi.Status
	if errors.As(err, &status) {
		if c, ok := statusClass[status]; ok {
			return c
		}
	}
	return ClassConfiguration
}

// ParseError is returned when the ID or payload text cannot be turned into a frame.
type ParseError struct {
	Field  string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Reason)
}
