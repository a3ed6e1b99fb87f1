// pkg/sync/protocol.go
package sync

import (
	"go.uber.org/zap"

	"weft/pkg/change"
)

// Doc is the view of a document the protocol needs. *document.Document
// satisfies it.
type Doc interface {
	Heads() []change.Hash
	HasChange(h change.Hash) bool
	GetChangeByHash(h change.Hash) *change.Change
	// ChangesSince returns changes outside the causal closure of heads, in
	// topological order.
	ChangesSince(heads []change.Hash) []*change.Change
	// MissingDeps returns the queue's unsatisfied deps plus any of extra
	// we do not hold.
	MissingDeps(extra []change.Hash) []change.Hash
	// ApplyChanges ingests changes, queuing those with missing deps.
	ApplyChanges(changes []*change.Change) error
}

// Engine runs the protocol for one document. The logger is optional and
// observes round sizes.
type Engine struct {
	doc Doc
	log *zap.Logger
}

// NewEngine wraps a document for syncing.
func NewEngine(doc Doc, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{doc: doc, log: log}
}

// Generate produces the next message for the peer described by st, or nil
// when there is nothing to say (quiescence).
func (e *Engine) Generate(st *State) (*Message, error) {
	ourHeads := e.doc.Heads()
	ourNeed := e.doc.MissingDeps(st.TheirHeads)

	// advertise our holdings unless we are missing something beyond the
	// peer's own heads (they could not answer a bloom over a broken base)
	needBeyondTheirHeads := false
	for _, h := range ourNeed {
		found := false
		for _, th := range st.TheirHeads {
			if h == th {
				found = true
				break
			}
		}
		if !found {
			needBeyondTheirHeads = true
			break
		}
	}
	var have []Have
	if !needBeyondTheirHeads {
		have = []Have{{
			LastSync: st.SharedHeads,
			Bloom:    NewBloomFilter(hashesOf(e.doc.ChangesSince(st.SharedHeads))),
		}}
	}

	var toSend []*change.Change
	if st.haveTheirInfo {
		toSend = e.changesToSend(st)
	}

	headsEqual := equalHashes(st.TheirHeads, ourHeads)
	if st.haveTheirInfo && headsEqual && len(toSend) == 0 && len(ourNeed) == 0 {
		return nil, nil // in sync
	}
	if st.InFlight && equalHashes(st.LastSentHeads, ourHeads) {
		return nil, nil // identical message already on the wire
	}

	filtered := toSend[:0]
	for _, c := range toSend {
		if _, sent := st.SentHashes[c.Hash]; !sent {
			filtered = append(filtered, c)
			st.SentHashes[c.Hash] = struct{}{}
		}
	}
	msg := &Message{Heads: ourHeads, Need: ourNeed, Have: have, Changes: filtered}
	st.LastSentHeads = ourHeads
	st.InFlight = true
	e.log.Debug("sync message generated",
		zap.Int("heads", len(msg.Heads)),
		zap.Int("need", len(msg.Need)),
		zap.Int("changes", len(msg.Changes)))
	return msg, nil
}

// changesToSend picks the local changes the peer is likely missing: every
// change since their last sync whose hash misses all their Bloom filters,
// the full dependent closure of those, and anything they asked for by
// hash.
func (e *Engine) changesToSend(st *State) []*change.Change {
	if len(st.TheirHave) == 0 {
		var out []*change.Change
		for _, h := range st.TheirNeed {
			if c := e.doc.GetChangeByHash(h); c != nil {
				out = append(out, c)
			}
		}
		return out
	}
	var lastSync []change.Hash
	for _, h := range st.TheirHave {
		lastSync = unionHashes(lastSync, h.LastSync)
	}
	candidates := e.doc.ChangesSince(lastSync)

	missing := make(map[change.Hash]struct{})
	dependents := make(map[change.Hash][]change.Hash)
	for _, c := range candidates {
		for _, dep := range c.Deps {
			dependents[dep] = append(dependents[dep], c.Hash)
		}
		inTheirs := false
		for _, h := range st.TheirHave {
			if h.Bloom.Contains(c.Hash) {
				inTheirs = true
				break
			}
		}
		if !inTheirs {
			missing[c.Hash] = struct{}{}
		}
	}
	// if they lack a change they cannot apply its descendants either
	stack := make([]change.Hash, 0, len(missing))
	for h := range missing {
		stack = append(stack, h)
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range dependents[h] {
			if _, ok := missing[dep]; !ok {
				missing[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	for _, h := range st.TheirNeed {
		missing[h] = struct{}{}
	}
	var out []*change.Change
	for _, c := range candidates {
		if _, ok := missing[c.Hash]; ok {
			out = append(out, c)
		}
	}
	for _, h := range st.TheirNeed {
		already := false
		for _, c := range out {
			if c.Hash == h {
				already = true
				break
			}
		}
		if !already {
			if c := e.doc.GetChangeByHash(h); c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Receive folds a peer message into the document and the state.
func (e *Engine) Receive(st *State, msg *Message) error {
	st.InFlight = false
	if len(msg.Changes) > 0 {
		if err := e.doc.ApplyChanges(msg.Changes); err != nil {
			return err
		}
	}
	st.TheirHeads = msg.Heads
	st.TheirNeed = msg.Need
	st.TheirHave = msg.Have
	st.haveTheirInfo = true

	known := msg.Heads[:0:0]
	for _, h := range msg.Heads {
		if e.doc.HasChange(h) {
			known = append(known, h)
		}
	}
	if len(known) == len(msg.Heads) {
		// both sides hold their heads: that frontier is fully shared
		st.SharedHeads = append([]change.Hash(nil), msg.Heads...)
	} else {
		st.SharedHeads = unionHashes(st.SharedHeads, known)
	}
	e.log.Debug("sync message received",
		zap.Int("changes", len(msg.Changes)),
		zap.Int("their_heads", len(msg.Heads)))
	return nil
}

func hashesOf(changes []*change.Change) []change.Hash {
	out := make([]change.Hash, len(changes))
	for i, c := range changes {
		out[i] = c.Hash
	}
	return out
}
