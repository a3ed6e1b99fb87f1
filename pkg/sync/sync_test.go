// pkg/sync/sync_test.go
package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"weft/pkg/change"
	"weft/pkg/format"
	"weft/pkg/types"
)

var (
	actorA = types.ActorID("aaaaaaaaaaaaaaaa")
	actorB = types.ActorID("bbbbbbbbbbbbbbbb")
)

// graphDoc is a minimal Doc over a change graph and ready queue, for
// exercising the protocol without a full document.
type graphDoc struct {
	t     *testing.T
	graph *change.Graph
	queue *change.ReadyQueue
}

func newGraphDoc(t *testing.T) *graphDoc {
	return &graphDoc{t: t, graph: change.NewGraph(), queue: change.NewReadyQueue()}
}

func (d *graphDoc) Heads() []change.Hash          { return d.graph.Heads() }
func (d *graphDoc) HasChange(h change.Hash) bool  { return d.graph.Has(h) }
func (d *graphDoc) GetChangeByHash(h change.Hash) *change.Change { return d.graph.Get(h) }

func (d *graphDoc) ChangesSince(heads []change.Hash) []*change.Change {
	return d.graph.ChangesSince(heads)
}

func (d *graphDoc) MissingDeps(extra []change.Hash) []change.Hash {
	missing := d.queue.MissingDeps(d.graph.Has)
	for _, h := range extra {
		if !d.graph.Has(h) {
			missing = append(missing, h)
		}
	}
	change.SortHashes(missing)
	return missing
}

func (d *graphDoc) ApplyChanges(changes []*change.Change) error {
	for _, c := range changes {
		d.queue.Push(c)
	}
	for {
		c := d.queue.PopReady(d.graph.Has)
		if c == nil {
			return nil
		}
		if err := d.graph.Add(c); err != nil {
			return err
		}
	}
}

// commit appends a single-op change to the doc.
func (d *graphDoc) commit(actor types.ActorID, seq uint64, key string, val int64) {
	startOp := uint64(1)
	if last := d.graph.LastLocalChange(actor); last != nil {
		startOp = last.MaxOp() + 1
	}
	// bump past everything seen so ids stay Lamport-consistent
	for _, other := range d.graph.Changes() {
		if other.MaxOp() >= startOp {
			startOp = other.MaxOp() + 1
		}
	}
	c := &change.Change{
		Actor: actor, Seq: seq, StartOp: startOp, Deps: d.graph.Heads(),
		Ops: []*types.Op{{
			ID: types.OpID{Counter: startOp, Actor: actor}, Action: types.ActionPut,
			Obj: types.RootObj, Key: types.MapKey(key), Value: types.Int(val),
		}},
	}
	_, err := format.EncodeChange(c)
	require.NoError(d.t, err)
	require.NoError(d.t, d.graph.Add(c))
}

// runSync alternates generate/receive until both sides are quiet,
// returning the number of messages exchanged.
func runSync(t *testing.T, a, b *graphDoc, sa, sb *State) int {
	ea, eb := NewEngine(a, nil), NewEngine(b, nil)
	rounds := 0
	for i := 0; i < 40; i++ {
		ma, err := ea.Generate(sa)
		require.NoError(t, err)
		if ma != nil {
			rounds++
			buf, err := ma.Encode()
			require.NoError(t, err)
			decoded, err := DecodeMessage(buf)
			require.NoError(t, err)
			require.NoError(t, eb.Receive(sb, decoded))
		}
		mb, err := eb.Generate(sb)
		require.NoError(t, err)
		if mb != nil {
			rounds++
			buf, err := mb.Encode()
			require.NoError(t, err)
			decoded, err := DecodeMessage(buf)
			require.NoError(t, err)
			require.NoError(t, ea.Receive(sa, decoded))
		}
		if ma == nil && mb == nil {
			return rounds
		}
	}
	t.Fatal("sync did not converge")
	return rounds
}

func TestBloomFilterMembership(t *testing.T) {
	var hashes []change.Hash
	for i := 0; i < 200; i++ {
		var h change.Hash
		h[0], h[5], h[9] = byte(i), byte(i*7), byte(i*13)
		h[31] = 0xaa
		hashes = append(hashes, h)
	}
	f := NewBloomFilter(hashes[:100])
	for _, h := range hashes[:100] {
		require.True(t, f.Contains(h), "member must be contained")
	}
	fp := 0
	for _, h := range hashes[100:] {
		if f.Contains(h) {
			fp++
		}
	}
	require.LessOrEqual(t, fp, 10, "false positive rate far above 1%%")
}

func TestBloomFilterRoundTrip(t *testing.T) {
	var h1, h2 change.Hash
	h1[0], h2[0] = 1, 2
	f := NewBloomFilter([]change.Hash{h1})
	parsed, err := ParseBloomFilter(f.Bytes())
	require.NoError(t, err)
	require.True(t, parsed.Contains(h1))
	require.False(t, parsed.Contains(h2))

	empty, err := ParseBloomFilter(NewBloomFilter(nil).Bytes())
	require.NoError(t, err)
	require.False(t, empty.Contains(h1))
}

func TestStatePersistence(t *testing.T) {
	st := NewState()
	var h change.Hash
	h[3] = 9
	st.SharedHeads = []change.Hash{h}
	st.InFlight = true
	st.SentHashes[h] = struct{}{}

	restored, err := DecodeState(st.Encode())
	require.NoError(t, err)
	require.Equal(t, st.SharedHeads, restored.SharedHeads)
	require.False(t, restored.InFlight, "only shared heads survive persistence")
	require.Empty(t, restored.SentHashes)

	_, err = DecodeState([]byte{0x99})
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestSyncConvergenceDisjointEdits(t *testing.T) {
	a, b := newGraphDoc(t), newGraphDoc(t)
	for i := 0; i < 20; i++ {
		a.commit(actorA, uint64(i+1), "a-key", int64(i))
	}
	for i := 0; i < 10; i++ {
		b.commit(actorB, uint64(i+1), "b-key", int64(i))
	}
	sa, sb := NewState(), NewState()
	msgs := runSync(t, a, b, sa, sb)
	require.Equal(t, a.graph.Heads(), b.graph.Heads())
	require.Equal(t, a.graph.Len(), b.graph.Len())
	require.LessOrEqual(t, msgs, 8, "traffic should be a handful of messages")
}

func TestSyncIncrementalAfterSharedHistory(t *testing.T) {
	a, b := newGraphDoc(t), newGraphDoc(t)
	for i := 0; i < 5; i++ {
		a.commit(actorA, uint64(i+1), "k", int64(i))
	}
	sa, sb := NewState(), NewState()
	runSync(t, a, b, sa, sb)
	require.Equal(t, a.graph.Heads(), b.graph.Heads())

	// one more local edit: the next session ships just the delta
	a.commit(actorA, 6, "k", 99)
	msg2 := runSync(t, a, b, NewState(), NewState())
	_ = msg2
	require.Equal(t, a.graph.Heads(), b.graph.Heads())
	require.Equal(t, 6, b.graph.Len())
}

func TestSyncNothingToDo(t *testing.T) {
	a, b := newGraphDoc(t), newGraphDoc(t)
	sa, sb := NewState(), NewState()
	runSync(t, a, b, sa, sb)
	e := NewEngine(a, nil)
	msg, err := e.Generate(sa)
	require.NoError(t, err)
	require.Nil(t, msg, "empty synced docs have nothing to say")
}
