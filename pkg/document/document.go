// pkg/document/document.go
// Package document is the user-facing façade: a Document owns an op set, a
// change graph and a ready queue, and exposes mutation, query, load/save,
// fork/merge and sync entry points. A Document is not internally
// synchronized; callers serialize access.
package document

import (
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"weft/pkg/change"
	"weft/pkg/format"
	"weft/pkg/opset"
	"weft/pkg/sync"
	"weft/pkg/types"
)

var (
	ErrCannotOverwriteCounter = errors.New("counter values can only be changed by increment")
	ErrNotACounter            = errors.New("increment target is not a counter")
	ErrNotASequence           = errors.New("object is not a list or text")
	ErrNotAMap                = errors.New("object is not a map or table")
	ErrTransactionClosed      = errors.New("transaction already committed or rolled back")
	ErrMissingHead            = errors.New("heads reference unknown changes")
)

// clockCacheSize bounds the historical-clock memo.
const clockCacheSize = 32

// Document is one replica of a collaborative JSON tree.
type Document struct {
	actor types.ActorID
	set   *opset.OpSet
	graph *change.Graph
	queue *change.ReadyQueue
	maxOp uint64

	clockCache *lru.Cache[string, types.Clock]
	tx         *Transaction
}

// Option configures a new document.
type Option func(*Document)

// WithActor fixes the local actor id instead of generating one.
func WithActor(actor types.ActorID) Option {
	return func(d *Document) { d.actor = actor }
}

// New returns an empty document with a random actor id.
func New(opts ...Option) *Document {
	cache, _ := lru.New[string, types.Clock](clockCacheSize)
	d := &Document{
		actor:      types.NewActorID(),
		set:        opset.New(),
		graph:      change.NewGraph(),
		queue:      change.NewReadyQueue(),
		clockCache: cache,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Actor returns the local actor id.
func (d *Document) Actor() types.ActorID { return d.actor }

// Heads returns the current document version: the change-graph frontier,
// sorted.
func (d *Document) Heads() []change.Hash { return d.graph.Heads() }

// HasChange reports whether the change is in the graph.
func (d *Document) HasChange(h change.Hash) bool { return d.graph.Has(h) }

// GetChangeByHash returns a change by content address, or nil.
func (d *Document) GetChangeByHash(h change.Hash) *change.Change { return d.graph.Get(h) }

// GetLastLocalChange returns the most recent change committed by the local
// actor, or nil.
func (d *Document) GetLastLocalChange() *change.Change { return d.graph.LastLocalChange(d.actor) }

// GetChanges returns every change outside the causal closure of haveDeps,
// topologically ordered.
func (d *Document) GetChanges(haveDeps []change.Hash) []*change.Change {
	return d.graph.ChangesSince(haveDeps)
}

// ChangesSince implements sync.Doc.
func (d *Document) ChangesSince(heads []change.Hash) []*change.Change {
	return d.graph.ChangesSince(heads)
}

// GetMissingDeps returns the dependencies the queued changes are waiting
// for, plus any of extra we do not hold.
func (d *Document) GetMissingDeps(extra []change.Hash) []change.Hash {
	missing := d.queue.MissingDeps(d.graph.Has)
	for _, h := range extra {
		if !d.graph.Has(h) {
			missing = append(missing, h)
		}
	}
	change.SortHashes(missing)
	return missing
}

// MissingDeps implements sync.Doc.
func (d *Document) MissingDeps(extra []change.Hash) []change.Hash {
	return d.GetMissingDeps(extra)
}

// ApplyChanges ingests remote changes: each is added to the graph and its
// ops spliced into the op set; changes missing dependencies are buffered
// and released when the dependencies arrive.
func (d *Document) ApplyChanges(changes []*change.Change) error {
	for _, c := range changes {
		if err := d.applyOne(c); err != nil {
			return err
		}
	}
	for {
		c := d.queue.PopReady(d.graph.Has)
		if c == nil {
			return nil
		}
		if err := d.ingest(c); err != nil {
			return err
		}
	}
}

func (d *Document) applyOne(c *change.Change) error {
	err := d.ingest(c)
	var missing *change.MissingDepError
	if errors.As(err, &missing) {
		d.queue.Push(c)
		return nil
	}
	return err
}

// ingest adds a change to the graph and replays its ops.
func (d *Document) ingest(c *change.Change) error {
	if d.graph.Has(c.Hash) {
		return nil
	}
	if err := d.graph.Add(c); err != nil {
		return err
	}
	for _, op := range c.Ops {
		if err := d.set.Apply(cloneOp(op)); err != nil {
			return err
		}
	}
	if c.MaxOp() > d.maxOp {
		d.maxOp = c.MaxOp()
	}
	d.clockCache.Purge()
	return nil
}

// cloneOp detaches an op from its change record: the op set owns the
// successor index and counter bookkeeping of its copy.
func cloneOp(op *types.Op) *types.Op {
	cp := *op
	cp.Succ = nil
	cp.Incs, cp.IncSum = 0, 0
	cp.Pred = append([]types.OpID(nil), op.Pred...)
	return &cp
}

// Fork returns an independent document with the same contents and a fresh
// actor id. Writes on either side never affect the other.
func (d *Document) Fork(opts ...Option) *Document {
	out := New(opts...)
	if err := out.ApplyChanges(d.graph.Changes()); err != nil {
		// changes replayed from a consistent graph cannot fail
		panic(err)
	}
	return out
}

// Merge pulls every change the other document has that this one lacks.
func (d *Document) Merge(other *Document) error {
	return d.ApplyChanges(other.GetChanges(d.Heads()))
}

// Save serializes the document as a single document chunk.
func (d *Document) Save() ([]byte, error) {
	return format.EncodeDocument(d.graph, d.set)
}

// SaveIncremental serializes the changes since heads as concatenated
// change chunks, for appending to a saved document.
func (d *Document) SaveIncremental(heads []change.Hash) ([]byte, error) {
	var out []byte
	for _, c := range d.graph.ChangesSince(heads) {
		raw, err := format.EncodeChange(c)
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

// Load reconstructs a document from saved bytes: one document chunk
// optionally followed by change chunks. When trailing chunks are corrupt
// the leading intact chunks are still applied and returned together with
// the error (a partial load).
func Load(data []byte, opts ...Option) (*Document, error) {
	d := New(opts...)
	applied := 0
	buf := data
	for len(buf) > 0 {
		chunk, rest, err := format.ParseChunk(buf)
		if err != nil {
			if applied == 0 {
				return nil, err
			}
			return d, err
		}
		buf = rest
		switch chunk.Type {
		case format.ChunkDocument:
			doc, err := format.DecodeDocument(chunk.Data)
			if err != nil {
				if applied == 0 {
					return nil, err
				}
				return d, err
			}
			if err := d.ApplyChanges(doc.Changes); err != nil {
				return d, err
			}
		case format.ChunkChange, format.ChunkCompressed:
			c, err := format.DecodeChange(chunk)
			if err != nil {
				if applied == 0 {
					return nil, err
				}
				return d, err
			}
			if err := d.ApplyChanges([]*change.Change{c}); err != nil {
				return d, err
			}
		case format.ChunkBundle:
			if applied == 0 {
				return nil, format.ErrBundleUnsupported
			}
			return d, format.ErrBundleUnsupported
		}
		applied++
	}
	return d, nil
}

// clockFor resolves an optional heads argument into a visibility clock;
// nil heads mean the present.
func (d *Document) clockFor(heads []change.Hash) (types.Clock, error) {
	if heads == nil {
		return nil, nil
	}
	for _, h := range heads {
		if !d.graph.Has(h) {
			return nil, ErrMissingHead
		}
	}
	key := clockKey(heads)
	if clock, ok := d.clockCache.Get(key); ok {
		return clock, nil
	}
	clock := d.graph.Clock(heads)
	d.clockCache.Add(key, clock)
	return clock, nil
}

func clockKey(heads []change.Hash) string {
	var b strings.Builder
	for _, h := range heads {
		b.Write(h[:])
	}
	return b.String()
}

// GenerateSyncMessage produces the next message for the peer, or nil when
// the peers are in sync.
func (d *Document) GenerateSyncMessage(st *sync.State) ([]byte, error) {
	msg, err := sync.NewEngine(d, nil).Generate(st)
	if err != nil || msg == nil {
		return nil, err
	}
	return msg.Encode()
}

// ReceiveSyncMessage folds a peer message into the document.
func (d *Document) ReceiveSyncMessage(st *sync.State, raw []byte) error {
	msg, err := sync.DecodeMessage(raw)
	if err != nil {
		return err
	}
	return sync.NewEngine(d, nil).Receive(st, msg)
}
