package ui

import "testing"

func TestInputAccepts(t *testing.T) {
	i := NewInput("filter", "Filter", 0, 0, 25, 30)
	if !i.accepts('z') {
		t.Error("input without Allowed rejected a rune")
	}
	i.Allowed = "0123456789abcdefABCDEFx, "
	tests := []struct {
		ch   rune
		want bool
	}{
		{'7', true},
		{'F', true},
		{',', true},
		{'x', true},
		{'g', false},
		{'-', false},
	}
	for _, tt := range tests {
		if got := i.accepts(tt.ch); got != tt.want {
			t.Errorf("accepts(%q) = %v, want %v", tt.ch, got, tt.want)
		}
	}
}
