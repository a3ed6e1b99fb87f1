// pkg/sync/message.go
package sync

import (
	"github.com/pkg/errors"

	"weft/internal/encoding"
	"weft/pkg/change"
	"weft/pkg/format"
)

// messageVersion is the first byte of an encoded sync message.
const messageVersion = 0x42

// Message is one round of the protocol: our heads, the hashes we
// explicitly want, summaries of what we hold, and the changes we decided
// to ship.
type Message struct {
	Heads   []change.Hash
	Need    []change.Hash
	Have    []Have
	Changes []*change.Change
}

// Encode serializes the message.
func (m *Message) Encode() ([]byte, error) {
	out := []byte{messageVersion}
	out = appendHashes(out, m.Heads)
	out = appendHashes(out, m.Need)
	out = encoding.AppendUleb(out, uint64(len(m.Have)))
	for _, h := range m.Have {
		out = appendHashes(out, h.LastSync)
		bloom := h.Bloom.Bytes()
		out = encoding.AppendUleb(out, uint64(len(bloom)))
		out = append(out, bloom...)
	}
	out = encoding.AppendUleb(out, uint64(len(m.Changes)))
	for _, c := range m.Changes {
		raw, err := format.EncodeChange(c)
		if err != nil {
			return nil, err
		}
		out = encoding.AppendUleb(out, uint64(len(raw)))
		out = append(out, raw...)
	}
	return out, nil
}

// DecodeMessage parses a sync message, verifying every embedded change
// chunk.
func DecodeMessage(buf []byte) (*Message, error) {
	if len(buf) == 0 || buf[0] != messageVersion {
		return nil, ErrBadFormat
	}
	buf = buf[1:]
	m := &Message{}
	var err error
	if m.Heads, buf, err = readHashes(buf); err != nil {
		return nil, err
	}
	if m.Need, buf, err = readHashes(buf); err != nil {
		return nil, err
	}
	haveCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrBadFormat
	}
	buf = buf[n:]
	for i := uint64(0); i < haveCount; i++ {
		var h Have
		if h.LastSync, buf, err = readHashes(buf); err != nil {
			return nil, err
		}
		bloomLen, n := encoding.Uleb(buf)
		if n == 0 || uint64(len(buf)-n) < bloomLen {
			return nil, ErrBadFormat
		}
		if h.Bloom, err = ParseBloomFilter(buf[n : n+int(bloomLen)]); err != nil {
			return nil, err
		}
		buf = buf[n+int(bloomLen):]
		m.Have = append(m.Have, h)
	}
	changeCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrBadFormat
	}
	buf = buf[n:]
	for i := uint64(0); i < changeCount; i++ {
		length, n := encoding.Uleb(buf)
		if n == 0 || uint64(len(buf)-n) < length {
			return nil, ErrBadFormat
		}
		chunkBytes := buf[n : n+int(length)]
		buf = buf[n+int(length):]
		chunk, rest, err := format.ParseChunk(chunkBytes)
		if err != nil {
			return nil, errors.Wrap(err, "sync change chunk")
		}
		if len(rest) != 0 {
			return nil, ErrBadFormat
		}
		c, err := format.DecodeChange(chunk)
		if err != nil {
			return nil, errors.Wrap(err, "sync change chunk")
		}
		m.Changes = append(m.Changes, c)
	}
	return m, nil
}
