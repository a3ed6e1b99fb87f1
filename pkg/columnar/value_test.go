// pkg/columnar/value_test.go
package columnar

import (
	"testing"

	"weft/pkg/types"
)

func TestValueGroupRoundTrip(t *testing.T) {
	vals := []types.ScalarValue{
		types.Null(),
		types.Bool(false),
		types.Bool(true),
		types.Uint(18446744073709551615),
		types.Int(-42),
		types.F64(3.25),
		types.Str("magpie"),
		types.Bytes([]byte{0x00, 0xff}),
		types.Counter(7),
		types.Timestamp(1700000000000),
		types.Unknown(12, []byte{1, 2, 3}),
	}
	enc := NewValueEncoder()
	for _, v := range vals {
		enc.Append(v)
	}
	meta, raw := enc.Finish()
	dec := NewValueDecoder(meta, raw)
	for i, want := range vals {
		got, ok := dec.Next()
		if !ok {
			t.Fatalf("value %d: unexpected end (err %v)", i, dec.Err())
		}
		if !got.Equal(want) {
			t.Errorf("value %d: expected %v, got %v", i, want, got)
		}
	}
	if _, ok := dec.Next(); ok {
		t.Error("expected end of group")
	}
}

func TestValueGroupUnknownPreservesTypeCode(t *testing.T) {
	enc := NewValueEncoder()
	enc.Append(types.Unknown(13, []byte{9, 9}))
	meta, raw := enc.Finish()
	dec := NewValueDecoder(meta, raw)
	got, ok := dec.Next()
	if !ok {
		t.Fatal("expected one value")
	}
	if got.Kind() != types.KindUnknown || got.TypeCode() != 13 {
		t.Errorf("expected unknown type code 13 back, got %v", got)
	}
}

func TestValueGroupBadUtf8(t *testing.T) {
	// meta says string of length 2, raw holds invalid utf-8
	metaEnc := NewRLEEncoder[uint64, UintPacker](UintPacker{})
	metaEnc.Append(2<<4 | ValTypeString)
	dec := NewValueDecoder(metaEnc.Finish(), []byte{0xff, 0xfe})
	if _, ok := dec.Next(); ok {
		t.Fatal("expected failure on invalid utf-8")
	}
	if dec.Err() != ErrBadUtf8 {
		t.Errorf("expected ErrBadUtf8, got %v", dec.Err())
	}
}

func TestValueGroupTruncatedRaw(t *testing.T) {
	metaEnc := NewRLEEncoder[uint64, UintPacker](UintPacker{})
	metaEnc.Append(4<<4 | ValTypeBytes)
	dec := NewValueDecoder(metaEnc.Finish(), []byte{1})
	if _, ok := dec.Next(); ok {
		t.Fatal("expected failure on truncated raw column")
	}
	if dec.Err() != ErrMalformedColumn {
		t.Errorf("expected ErrMalformedColumn, got %v", dec.Err())
	}
}
