package filters

import (
	"bytes"
	"testing"
)

// TestRunLengthDecode tests literal runs, repeat runs, and the end marker
func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected []byte
	}{
		{
			name:     "literal run",
			data:     []byte{4, 'H', 'e', 'l', 'l', 'o', 128},
			expected: []byte("Hello"),
		},
		{
			name:     "single byte literal",
			data:     []byte{0, 'X', 128},
			expected: []byte("X"),
		},
		{
			name:     "repeat run",
			data:     []byte{254, 'a', 128},
			expected: []byte("aaa"),
		},
		{
			name:     "longest repeat run",
			data:     []byte{129, 'b', 128},
			expected: bytes.Repeat([]byte{'b'}, 128),
		},
		{
			name:     "mixed runs",
			data:     []byte{0, 'X', 255, 'y', 1, 'z', 'w', 128},
			expected: []byte("Xyyzw"),
		},
		{
			name:     "empty data",
			data:     nil,
			expected: nil,
		},
		{
			name:     "end marker only",
			data:     []byte{128},
			expected: nil,
		},
		{
			name:     "missing end marker tolerated",
			data:     []byte{1, 'h', 'i'},
			expected: []byte("hi"),
		},
		{
			name:     "data after end marker ignored",
			data:     []byte{0, 'A', 128, 0, 'B'},
			expected: []byte("A"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := RunLengthDecode(tt.data)
			if err != nil {
				t.Fatalf("RunLengthDecode failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.expected) {
				t.Errorf("decoded data doesn't match\ngot:  %v\nwant: %v", decoded, tt.expected)
			}
		})
	}
}

// TestRunLengthDecodeTruncated tests error handling for runs cut short
func TestRunLengthDecodeTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "literal run cut short",
			data: []byte{4, 'H', 'e'},
		},
		{
			name: "repeat run missing its byte",
			data: []byte{200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunLengthDecode(tt.data); err == nil {
				t.Error("expected error for truncated data")
			}
		})
	}
}
