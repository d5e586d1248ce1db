package vxlapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{SUCCESS, "XL_SUCCESS"},
		{ERR_QUEUE_IS_EMPTY, "XL_ERR_QUEUE_IS_EMPTY"},
		{ERR_INVALID_ACCESS, "XL_ERR_INVALID_ACCESS"},
		{ERR_QUEUE_OVERRUN, "XL_ERR_QUEUE_OVERRUN"},
		{ERROR, "XL_ERROR"},
		{Status(99), "XL_STATUS_99"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int16(tt.status), got, tt.want)
		}
	}
}

func TestNewError(t *testing.T) {
	if err := NewError("xlOpenDriver", SUCCESS); err != nil {
		t.Fatalf("NewError(SUCCESS) = %v, want nil", err)
	}

	err := NewError("xlOpenPort", ERR_INVALID_ACCESS)
	if err == nil {
		t.Fatal("NewError returned nil for a failure status")
	}
	if want := "xlOpenPort: XL_ERR_INVALID_ACCESS (112)"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("open port: %w", err)
	if !errors.Is(wrapped, ERR_INVALID_ACCESS) {
		t.Error("errors.Is did not match the status sentinel")
	}
	if errors.Is(wrapped, ERR_QUEUE_IS_EMPTY) {
		t.Error("errors.Is matched the wrong status")
	}
	var xe *Error
	if !errors.As(wrapped, &xe) || xe.Func != "xlOpenPort" || xe.Status != ERR_INVALID_ACCESS {
		t.Errorf("errors.As = %+v", xe)
	}
}

func TestCheckErrSignExtension(t *testing.T) {
	// only the low 16 bits of the return register carry the status
	err := checkErr("xlReceive", uintptr(0xFFFF000A))
	if !errors.Is(err, ERR_QUEUE_IS_EMPTY) {
		t.Errorf("checkErr = %v, want XL_ERR_QUEUE_IS_EMPTY", err)
	}
	if err := checkErr("xlReceive", 0); err != nil {
		t.Errorf("checkErr(0) = %v", err)
	}
}

func TestBindingConfigured(t *testing.T) {
	if (Binding{}).Configured() {
		t.Error("zero binding reported as configured")
	}
	b := Binding{HwType: HWTYPE_VIRTUAL, HwChannel: 1}
	if !b.Configured() {
		t.Error("virtual binding reported as not configured")
	}
	if want := "XL_HWTYPE_VIRTUAL index 0 channel 1"; b.String() != want {
		t.Errorf("String() = %q, want %q", b.String(), want)
	}
}
