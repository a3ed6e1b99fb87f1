// pkg/document/file.go
package document

import (
	"os"

	"weft/internal/mmapfile"
)

// LoadFile reads a saved document from disk through a read-only memory
// map, so large documents parse without an extra in-heap copy of the
// file.
func LoadFile(path string, opts ...Option) (*Document, error) {
	m, err := mmapfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	// Load copies what it keeps (chunk payloads are decoded, not aliased),
	// so unmapping on return is safe.
	return Load(m.Bytes(), opts...)
}

// SaveFile writes the document to path.
func (d *Document) SaveFile(path string) error {
	data, err := d.Save()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
