// internal/encoding/leb128_test.go
package encoding

import (
	"bytes"
	"testing"
)

func TestAppendUleb(t *testing.T) {
	tests := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{1<<64 - 1, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
	}
	for _, tt := range tests {
		got := AppendUleb(nil, tt.value)
		if !bytes.Equal(got, tt.expected) {
			t.Errorf("AppendUleb(%d): expected % x, got % x", tt.value, tt.expected, got)
		}
		if UlebLen(tt.value) != len(tt.expected) {
			t.Errorf("UlebLen(%d): expected %d, got %d", tt.value, len(tt.expected), UlebLen(tt.value))
		}
		back, n := Uleb(got)
		if n != len(got) || back != tt.value {
			t.Errorf("Uleb(% x): expected (%d, %d), got (%d, %d)", got, tt.value, len(got), back, n)
		}
	}
}

func TestAppendLeb(t *testing.T) {
	tests := []struct {
		value    int64
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
		{127, []byte{0xff, 0x00}},
		{-128, []byte{0x80, 0x7f}},
	}
	for _, tt := range tests {
		got := AppendLeb(nil, tt.value)
		if !bytes.Equal(got, tt.expected) {
			t.Errorf("AppendLeb(%d): expected % x, got % x", tt.value, tt.expected, got)
		}
		if LebLen(tt.value) != len(tt.expected) {
			t.Errorf("LebLen(%d): expected %d, got %d", tt.value, len(tt.expected), LebLen(tt.value))
		}
		back, n := Leb(got)
		if n != len(got) || back != tt.value {
			t.Errorf("Leb(% x): expected (%d, %d), got (%d, %d)", got, tt.value, len(got), back, n)
		}
	}
}

func TestLebRoundTripExtremes(t *testing.T) {
	for _, v := range []int64{1<<63 - 1, -1 << 63, 1 << 32, -(1 << 32)} {
		buf := AppendLeb(nil, v)
		back, n := Leb(buf)
		if n != len(buf) || back != v {
			t.Errorf("round trip %d: got (%d, %d) from % x", v, back, n, buf)
		}
	}
}

func TestUlebTruncated(t *testing.T) {
	if _, n := Uleb([]byte{0x80}); n != 0 {
		t.Errorf("truncated input: expected n=0, got %d", n)
	}
	if _, n := Uleb(nil); n != 0 {
		t.Errorf("empty input: expected n=0, got %d", n)
	}
	// 10 continuation bytes and a final byte (11 bytes) overflow a u64
	over := bytes.Repeat([]byte{0x80}, 10)
	over = append(over, 0x01)
	if _, n := Uleb(over); n != 0 {
		t.Errorf("overflow input: expected n=0, got %d", n)
	}
}
