// internal/mmapfile/mmapfile.go
// Package mmapfile provides read-only memory-mapped access to saved
// documents, so large files load without a second in-heap copy.
// Platform-specific implementations are in mmap_unix.go and
// mmap_windows.go.
package mmapfile

import "errors"

var ErrEmptyFile = errors.New("cannot mmap an empty file")

// File is a read-only memory-mapped file.
type File struct {
	handle any // nil on Unix (the descriptor is closed once mapped), windows.Handle on Windows
	data   []byte
	size   int64
}

// Size returns the mapped length.
func (f *File) Size() int64 { return f.size }

// Bytes returns the mapped contents. The slice is valid until Close; the
// caller must not mutate it.
func (f *File) Bytes() []byte { return f.data }
