package ingest

import (
	"reflect"
	"testing"
)

func TestCoerceCell(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"443", float64(443)},
		{"-12.5", -12.5},
		{"+3", float64(3)},
		{".5", 0.5},
		{"1e3", float64(1000)},
		{" 42 ", float64(42)},
		{"true", true},
		{"FALSE", false},
		{"True", true},
		{"yes", "yes"},
		{"10.0.0.1", "10.0.0.1"},
		{"$100", "$100"},
		{"1,000", "1,000"},
		{"0x1F", "0x1F"},
		{"   ", "   "},
		{"1e400", "1e400"},
		{"123456789012345678", "123456789012345678"},
		{"us-east-1", "us-east-1"},
	}

	for _, tt := range tests {
		got := coerceCell(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("coerceCell(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
