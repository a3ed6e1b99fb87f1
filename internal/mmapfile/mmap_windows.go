//go:build windows

// internal/mmapfile/mmap_windows.go
package mmapfile

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Open memory-maps path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		return nil, ErrEmptyFile
	}
	mapping, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil,
		windows.PAGE_READONLY, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, err
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &File{handle: mapping, data: data, size: size}, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&f.data[0]))
	f.data = nil
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return err
	}
	if h, ok := f.handle.(windows.Handle); ok {
		return windows.CloseHandle(h)
	}
	return nil
}
