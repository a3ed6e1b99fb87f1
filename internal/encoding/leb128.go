// internal/encoding/leb128.go
package encoding

// LEB128 variable-length integers: 7 bits of payload per byte, least
// significant group first, high bit set while more bytes follow. Signed
// values use two's-complement sign extension in the final group.

// maxLebLen is the longest valid encoding of a 64-bit value.
const maxLebLen = 10

// AppendUleb appends the unsigned LEB128 encoding of v to dst.
func AppendUleb(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendLeb appends the signed LEB128 encoding of v to dst.
func AppendLeb(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// Uleb decodes an unsigned LEB128 value from buf.
// Returns the value and the number of bytes consumed; n == 0 means buf is
// truncated or the encoding overflows 64 bits.
func Uleb(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for n := 0; n < len(buf); n++ {
		b := buf[n]
		if n == maxLebLen-1 && b > 1 {
			return 0, 0 // overflow past 64 bits
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, n + 1
		}
		if n == maxLebLen-1 {
			return 0, 0
		}
		shift += 7
	}
	return 0, 0
}

// Leb decodes a signed LEB128 value from buf.
// Returns the value and the number of bytes consumed; n == 0 on truncated
// or overflowing input.
func Leb(buf []byte) (int64, int) {
	var v int64
	var shift uint
	for n := 0; n < len(buf); n++ {
		b := buf[n]
		if n == maxLebLen-1 && b != 0 && b != 0x7f {
			return 0, 0
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v, n + 1
		}
		if n == maxLebLen-1 {
			return 0, 0
		}
	}
	return 0, 0
}

// UlebLen returns the encoded length of v.
func UlebLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}

// LebLen returns the encoded length of v.
func LebLen(v int64) int {
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		n++
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return n
		}
	}
}
