// pkg/columnar/rle_test.go
package columnar

import (
	"bytes"
	"testing"
)

func encodeUints(cells []Cell[uint64]) []byte {
	enc := NewRLEEncoder[uint64, UintPacker](UintPacker{})
	for _, c := range cells {
		enc.AppendCell(c)
	}
	return enc.Finish()
}

func decodeUints(t *testing.T, buf []byte) []Cell[uint64] {
	t.Helper()
	dec := NewRLEDecoder[uint64, UintPacker](UintPacker{}, buf)
	var out []Cell[uint64]
	for {
		c, ok := dec.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	if dec.Err() != nil {
		t.Fatalf("decode error: %v", dec.Err())
	}
	return out
}

func TestRLERoundTrip(t *testing.T) {
	tests := [][]Cell[uint64]{
		nil,
		{Some[uint64](1)},
		{Some[uint64](1), Some[uint64](1), Some[uint64](1)},
		{Some[uint64](1), Some[uint64](2), Some[uint64](3)},
		{NullCell[uint64](), NullCell[uint64]()},
		{Some[uint64](7), NullCell[uint64](), Some[uint64](7), Some[uint64](7)},
		{Some[uint64](1), Some[uint64](1), Some[uint64](2), Some[uint64](3), Some[uint64](3), Some[uint64](3)},
	}
	for i, cells := range tests {
		buf := encodeUints(cells)
		got := decodeUints(t, buf)
		if len(got) != len(cells) {
			t.Fatalf("case %d: expected %d cells, got %d", i, len(cells), len(got))
		}
		for j := range cells {
			if got[j] != cells[j] {
				t.Errorf("case %d cell %d: expected %+v, got %+v", i, j, cells[j], got[j])
			}
		}
	}
}

func TestRLERunCompression(t *testing.T) {
	// 1000 copies of the same value must encode to a single short run
	cells := make([]Cell[uint64], 1000)
	for i := range cells {
		cells[i] = Some[uint64](42)
	}
	buf := encodeUints(cells)
	if len(buf) > 4 {
		t.Errorf("1000-value run should encode in <= 4 bytes, got %d", len(buf))
	}
}

func TestRLECanonicalAcrossBuildOrder(t *testing.T) {
	// the same logical sequence encodes identically however it was appended
	a := encodeUints([]Cell[uint64]{Some[uint64](5), Some[uint64](5), Some[uint64](5)})
	enc := NewRLEEncoder[uint64, UintPacker](UintPacker{})
	enc.Append(5)
	enc.AppendRun(5, 2)
	b := enc.Finish()
	if !bytes.Equal(a, b) {
		t.Errorf("expected identical encodings, got % x vs % x", a, b)
	}
}

func TestRLELiteralThenRun(t *testing.T) {
	// a literal followed by a repeat of its last element must break the
	// literal and open a run
	cells := []Cell[uint64]{
		Some[uint64](1), Some[uint64](2), Some[uint64](3), Some[uint64](3), Some[uint64](3),
	}
	buf := encodeUints(cells)
	got := decodeUints(t, buf)
	for i := range cells {
		if got[i] != cells[i] {
			t.Fatalf("cell %d: expected %+v, got %+v", i, cells[i], got[i])
		}
	}
	// layout: literal(-2) 1 2, run(3) 3
	expect := []byte{0x7e, 0x01, 0x02, 0x03, 0x03}
	if !bytes.Equal(buf, expect) {
		t.Errorf("expected canonical layout % x, got % x", expect, buf)
	}
}

func TestRLEStrings(t *testing.T) {
	enc := NewRLEEncoder[string, StrPacker](StrPacker{})
	enc.Append("bird")
	enc.Append("bird")
	enc.AppendNull()
	enc.Append("fish")
	buf := enc.Finish()
	dec := NewRLEDecoder[string, StrPacker](StrPacker{}, buf)
	want := []Cell[string]{Some("bird"), Some("bird"), NullCell[string](), Some("fish")}
	for i, w := range want {
		c, ok := dec.Next()
		if !ok {
			t.Fatalf("cell %d: unexpected end (err %v)", i, dec.Err())
		}
		if c != w {
			t.Errorf("cell %d: expected %+v, got %+v", i, w, c)
		}
	}
	if _, ok := dec.Next(); ok {
		t.Error("expected end of column")
	}
}

func TestRLEMalformed(t *testing.T) {
	// run count present but value truncated
	dec := NewRLEDecoder[uint64, UintPacker](UintPacker{}, []byte{0x05})
	if _, ok := dec.Next(); ok {
		t.Fatal("expected failure on truncated run")
	}
	if dec.Err() == nil {
		t.Fatal("expected decoder error")
	}
}

func TestDeltaRoundTrip(t *testing.T) {
	vals := []int64{1, 2, 3, 4, 10, 10, 9, -5, 100}
	enc := NewDeltaEncoder(0)
	for _, v := range vals {
		enc.Append(v)
	}
	buf := enc.Finish()
	dec := NewDeltaDecoder(buf, 0)
	for i, v := range vals {
		c, ok := dec.Next()
		if !ok || c.Null || c.Val != v {
			t.Fatalf("value %d: expected %d, got %+v ok=%v", i, v, c, ok)
		}
	}
}

func TestDeltaCompressesSequentialIDs(t *testing.T) {
	// sequential counters are the common case: diffs are all 1
	enc := NewDeltaEncoder(0)
	for i := int64(1); i <= 1000; i++ {
		enc.Append(i)
	}
	buf := enc.Finish()
	if len(buf) > 4 {
		t.Errorf("sequential ids should encode in <= 4 bytes, got %d", len(buf))
	}
}

func TestBooleanRoundTrip(t *testing.T) {
	tests := [][]bool{
		nil,
		{false},
		{true},
		{true, true, false, true},
		{false, false, false, true, true},
	}
	for i, vals := range tests {
		enc := NewBoolEncoder()
		for _, v := range vals {
			enc.Append(v)
		}
		buf := enc.Finish()
		dec := NewBoolDecoder(buf)
		for j, v := range vals {
			got, ok := dec.Next()
			if !ok || got != v {
				t.Fatalf("case %d val %d: expected %v, got %v ok=%v", i, j, v, got, ok)
			}
		}
		if _, ok := dec.Next(); ok {
			t.Errorf("case %d: expected end of column", i)
		}
	}
}

func TestBooleanStartsWithFalseRun(t *testing.T) {
	enc := NewBoolEncoder()
	enc.Append(true)
	buf := enc.Finish()
	// leading zero count for the empty false run, then a run of one true
	if !bytes.Equal(buf, []byte{0x00, 0x01}) {
		t.Errorf("expected 00 01, got % x", buf)
	}
}

func TestRawRoundTrip(t *testing.T) {
	enc := NewRawEncoder()
	enc.Append([]byte("hello"))
	enc.Append(nil)
	enc.Append([]byte{0xff, 0x00})
	buf := enc.Finish()
	dec := NewRawDecoder(buf)
	want := [][]byte{[]byte("hello"), {}, {0xff, 0x00}}
	for i, w := range want {
		got, ok := dec.Next()
		if !ok {
			t.Fatalf("item %d: unexpected end (err %v)", i, dec.Err())
		}
		if !bytes.Equal(got, w) {
			t.Errorf("item %d: expected % x, got % x", i, w, got)
		}
	}
}
