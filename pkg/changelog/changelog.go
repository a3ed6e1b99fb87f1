// pkg/changelog/changelog.go
// Package changelog implements an append-only document log for durability
// between full saves.
//
// # LOG FILE FORMAT
//
// A log file is a saved document followed by zero or more appended change
// chunks, each independently framed and checksummed:
//
//	+--------------------+
//	| Document chunk     |  full snapshot at creation / last compaction
//	+--------------------+
//	| Change chunk       |  one committed change
//	+--------------------+
//	| Change chunk       |
//	+--------------------+
//	| ...                |
//
// Opening a log replays the snapshot and every intact trailing change. A
// torn tail (a partial append after a crash) is detected by the chunk
// checksum and truncated away on the next append. Compact rewrites the
// file as a single fresh document chunk.
package changelog

import (
	"errors"
	"os"
	"sync"

	"weft/pkg/change"
	"weft/pkg/document"
	"weft/pkg/format"
)

var (
	ErrClosed = errors.New("changelog is closed")
)

// Log is an open changelog file backing one document.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	doc    *document.Document
	closed bool
	// goodLen is the byte offset after the last intact chunk; a torn tail
	// beyond it is discarded on the next append.
	goodLen int64
}

// Create writes a fresh log for doc at path.
func Create(path string, doc *document.Document) (*Log, error) {
	snapshot, err := doc.Save()
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(snapshot); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, err
	}
	return &Log{file: file, doc: doc, goodLen: int64(len(snapshot))}, nil
}

// Open replays a log from path. Intact chunks are applied in order; a
// corrupt tail is tolerated and dropped.
func Open(path string, opts ...document.Option) (*Log, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		file.Close()
		return nil, err
	}
	doc, loadErr := document.Load(data, opts...)
	if doc == nil {
		file.Close()
		return nil, loadErr
	}
	goodLen := int64(len(data))
	if loadErr != nil {
		// find where the intact prefix ends
		goodLen = intactPrefixLen(data)
	}
	return &Log{file: file, doc: doc, goodLen: goodLen}, nil
}

func intactPrefixLen(data []byte) int64 {
	var off int64
	buf := data
	for len(buf) > 0 {
		_, rest, err := format.ParseChunk(buf)
		if err != nil {
			break
		}
		off += int64(len(buf) - len(rest))
		buf = rest
	}
	return off
}

// Document returns the document backed by the log.
func (l *Log) Document() *document.Document { return l.doc }

// Append durably records changes committed since heads.
func (l *Log) Append(heads []change.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	tail, err := l.doc.SaveIncremental(heads)
	if err != nil {
		return err
	}
	if len(tail) == 0 {
		return nil
	}
	if err := l.file.Truncate(l.goodLen); err != nil {
		return err
	}
	if _, err := l.file.WriteAt(tail, l.goodLen); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	l.goodLen += int64(len(tail))
	return nil
}

// Compact rewrites the log as a single document chunk.
func (l *Log) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	snapshot, err := l.doc.Save()
	if err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.WriteAt(snapshot, 0); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	l.goodLen = int64(len(snapshot))
	return nil
}

// Close releases the file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
