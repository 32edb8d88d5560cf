package ingest

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestTextReader_BOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("LineId,Level")...),
			expected: "LineId,Level",
		},
		{
			name:     "file without BOM",
			input:    []byte("LineId,Level"),
			expected: "LineId,Level",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is kept as text",
			input:    []byte{0xEF, 0xBB, 'a'},
			expected: "??a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newTextReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTextReader_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "ascii passes through",
			input:    []byte("awsRegion,eventName"),
			expected: "awsRegion,eventName",
		},
		{
			name:     "valid multi-byte passes through",
			input:    []byte("café,naïve"),
			expected: "café,naïve",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'a', 0xFF, 'b'},
			expected: "a?b",
		},
		{
			name:     "truncated sequence at end replaced",
			input:    []byte{'x', 0xC3},
			expected: "x?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newTextReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTextReader_SplitRuneAcrossReads(t *testing.T) {
	input := []byte("Level,Content\nINFO,résumé é\n")
	r := newTextReader(iotest.OneByteReader(bytes.NewReader(input)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Errorf("got %q, want %q", got, input)
	}
}
