// pkg/sync/state.go
package sync

import (
	"errors"

	"weft/internal/encoding"
	"weft/pkg/change"
)

var ErrBadFormat = errors.New("malformed sync payload")

// stateVersion is the first byte of a persisted sync state.
const stateVersion = 0x43

// Have summarizes what one side already holds: the heads at the last
// successful sync plus a Bloom filter of everything added since.
type Have struct {
	LastSync []change.Hash
	Bloom    *BloomFilter
}

// State is the per-peer sync memo. Only SharedHeads is required for
// correctness and survives persistence; the rest is per-session cache.
type State struct {
	// SharedHeads are heads both sides are known to have.
	SharedHeads []change.Hash
	// LastSentHeads are the heads included in our last message.
	LastSentHeads []change.Hash
	// TheirHeads / TheirNeed / TheirHave cache the peer's last message.
	TheirHeads []change.Hash
	TheirNeed  []change.Hash
	TheirHave  []Have
	// haveTheirInfo is set once any message has been received.
	haveTheirInfo bool
	// SentHashes suppresses re-sending a change within a session.
	SentHashes map[change.Hash]struct{}
	// InFlight suppresses duplicate identical messages.
	InFlight bool
}

// NewState returns a fresh per-peer state.
func NewState() *State {
	return &State{SentHashes: make(map[change.Hash]struct{})}
}

// Encode persists the durable part of the state.
func (s *State) Encode() []byte {
	out := []byte{stateVersion}
	out = appendHashes(out, s.SharedHeads)
	return out
}

// DecodeState restores a persisted state.
func DecodeState(buf []byte) (*State, error) {
	if len(buf) == 0 || buf[0] != stateVersion {
		return nil, ErrBadFormat
	}
	shared, _, err := readHashes(buf[1:])
	if err != nil {
		return nil, err
	}
	st := NewState()
	st.SharedHeads = shared
	return st, nil
}

func appendHashes(dst []byte, hashes []change.Hash) []byte {
	dst = encoding.AppendUleb(dst, uint64(len(hashes)))
	for _, h := range hashes {
		dst = append(dst, h[:]...)
	}
	return dst
}

func readHashes(buf []byte) ([]change.Hash, []byte, error) {
	count, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, nil, ErrBadFormat
	}
	buf = buf[n:]
	if uint64(len(buf)) < count*32 {
		return nil, nil, ErrBadFormat
	}
	out := make([]change.Hash, count)
	for i := range out {
		copy(out[i][:], buf[:32])
		buf = buf[32:]
	}
	return out, buf, nil
}

func equalHashes(a, b []change.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionHashes(a, b []change.Hash) []change.Hash {
	seen := make(map[change.Hash]struct{}, len(a)+len(b))
	var out []change.Hash
	for _, hs := range [][]change.Hash{a, b} {
		for _, h := range hs {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				out = append(out, h)
			}
		}
	}
	change.SortHashes(out)
	return out
}
