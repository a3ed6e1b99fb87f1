// pkg/format/errors.go
package format

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic         = errors.New("bad magic bytes")
	ErrBadChecksum      = errors.New("chunk checksum mismatch")
	ErrLengthMismatch   = errors.New("chunk length mismatch")
	ErrUnknownChunkType = errors.New("unknown chunk type")
	ErrLebOverflow      = errors.New("leb128 value truncated or overflows")
	ErrBadUtf8          = errors.New("invalid utf-8")
	ErrColumnsOutOfOrder = errors.New("column specs out of order")
	ErrUnknownAction    = errors.New("unknown action code")
	ErrUnexpectedNull   = errors.New("unexpected null in column")
	ErrBundleUnsupported = errors.New("bundle chunks are not supported")
)

// HashMismatchError reports a declared head that does not match the
// recomputed change hash.
type HashMismatchError struct {
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: declared %s, computed %s", e.Expected, e.Actual)
}
