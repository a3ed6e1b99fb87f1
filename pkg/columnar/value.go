// pkg/columnar/value.go
package columnar

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"weft/internal/encoding"
	"weft/pkg/types"
)

// Value group: a pair of columns encoding heterogeneous scalar values. The
// meta column is RLE<u64> of (payload_length << 4) | type_code; the raw
// column is the concatenation of the payloads in order.
const (
	ValTypeNull      = 0
	ValTypeFalse     = 1
	ValTypeTrue      = 2
	ValTypeUleb      = 3
	ValTypeLeb       = 4
	ValTypeFloat     = 5
	ValTypeString    = 6
	ValTypeBytes     = 7
	ValTypeCounter   = 8
	ValTypeTimestamp = 9
	valTypeKnownMax  = 9
)

// A known type code whose payload cannot be decoded is reported via
// ValueDecoder.Err as ErrMalformedColumn (ErrBadUtf8 for strings).
// Unknown codes >= 10 are preserved, not rejected.

// ValueEncoder builds the meta and raw columns of a value group.
type ValueEncoder struct {
	meta *RLEEncoder[uint64, UintPacker]
	raw  []byte
	len  int
}

// NewValueEncoder returns an empty value-group encoder.
func NewValueEncoder() *ValueEncoder {
	return &ValueEncoder{meta: NewRLEEncoder[uint64, UintPacker](UintPacker{})}
}

// Append adds one scalar value.
func (e *ValueEncoder) Append(v types.ScalarValue) {
	e.len++
	var payload []byte
	var code uint64
	switch v.Kind() {
	case types.KindNull:
		code = ValTypeNull
	case types.KindBool:
		if v.Bool() {
			code = ValTypeTrue
		} else {
			code = ValTypeFalse
		}
	case types.KindUint:
		code = ValTypeUleb
		payload = encoding.AppendUleb(nil, v.Uint())
	case types.KindInt:
		code = ValTypeLeb
		payload = encoding.AppendLeb(nil, v.Int())
	case types.KindF64:
		code = ValTypeFloat
		payload = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.F64()))
	case types.KindStr:
		code = ValTypeString
		payload = []byte(v.Str())
	case types.KindBytes:
		code = ValTypeBytes
		payload = v.RawBytes()
	case types.KindCounter:
		code = ValTypeCounter
		payload = encoding.AppendLeb(nil, v.Int())
	case types.KindTimestamp:
		code = ValTypeTimestamp
		payload = encoding.AppendLeb(nil, v.Int())
	case types.KindUnknown:
		code = uint64(v.TypeCode())
		payload = v.RawBytes()
	}
	e.meta.Append(uint64(len(payload))<<4 | code)
	e.raw = append(e.raw, payload...)
}

// AppendNull records a row with no value at all (distinct from an explicit
// null scalar only in that trailing null rows may be elided).
func (e *ValueEncoder) AppendNull() {
	e.len++
	e.meta.AppendNull()
}

// Len returns the number of values appended.
func (e *ValueEncoder) Len() int { return e.len }

// Finish returns the encoded meta and raw columns.
func (e *ValueEncoder) Finish() (meta, raw []byte) {
	return e.meta.Finish(), e.raw
}

// ValueDecoder walks a value group.
type ValueDecoder struct {
	meta *RLEDecoder[uint64, UintPacker]
	raw  []byte
	off  int
	err  error
}

// NewValueDecoder positions a decoder at the start of a value group.
func NewValueDecoder(meta, raw []byte) *ValueDecoder {
	return &ValueDecoder{meta: NewRLEDecoder[uint64, UintPacker](UintPacker{}, meta), raw: raw}
}

// Next returns the next scalar value; ok is false at end of column or on
// error.
func (d *ValueDecoder) Next() (types.ScalarValue, bool) {
	if d.err != nil {
		return types.ScalarValue{}, false
	}
	c, ok := d.meta.Next()
	if !ok {
		d.err = d.meta.Err()
		return types.ScalarValue{}, false
	}
	if c.Null {
		// a null meta cell means no value was recorded for this row
		return types.Null(), true
	}
	code := c.Val & 0x0f
	length := int(c.Val >> 4)
	if d.off+length > len(d.raw) {
		d.err = ErrMalformedColumn
		return types.ScalarValue{}, false
	}
	payload := d.raw[d.off : d.off+length]
	d.off += length
	v, err := decodeValue(code, payload)
	if err != nil {
		d.err = err
		return types.ScalarValue{}, false
	}
	return v, true
}

func decodeValue(code uint64, payload []byte) (types.ScalarValue, error) {
	switch code {
	case ValTypeNull:
		if len(payload) != 0 {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.Null(), nil
	case ValTypeFalse:
		return types.Bool(false), nil
	case ValTypeTrue:
		return types.Bool(true), nil
	case ValTypeUleb:
		v, n := encoding.Uleb(payload)
		if n != len(payload) {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.Uint(v), nil
	case ValTypeLeb:
		v, n := encoding.Leb(payload)
		if n != len(payload) {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.Int(v), nil
	case ValTypeFloat:
		if len(payload) != 8 {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.F64(math.Float64frombits(binary.LittleEndian.Uint64(payload))), nil
	case ValTypeString:
		if !utf8.Valid(payload) {
			return types.ScalarValue{}, ErrBadUtf8
		}
		return types.Str(string(payload)), nil
	case ValTypeBytes:
		return types.Bytes(payload), nil
	case ValTypeCounter:
		v, n := encoding.Leb(payload)
		if n != len(payload) {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.Counter(v), nil
	case ValTypeTimestamp:
		v, n := encoding.Leb(payload)
		if n != len(payload) {
			return types.ScalarValue{}, ErrMalformedColumn
		}
		return types.Timestamp(v), nil
	default:
		return types.Unknown(uint8(code), payload), nil
	}
}

// Err reports a malformed-column error.
func (d *ValueDecoder) Err() error { return d.err }
