//go:build unix || darwin || linux || freebsd || openbsd || netbsd

// internal/mmapfile/mmap_unix.go
package mmapfile

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Open memory-maps path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		f.Close()
		return nil, ErrEmptyFile
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size),
		syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	// the mapping outlives the descriptor
	f.Close()
	return &File{handle: nil, data: data, size: size}, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	err := unix.Munmap(f.data)
	f.data = nil
	return err
}
