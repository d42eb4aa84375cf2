package ledgerview

import (
	"ledgercore/blockexec/bhash"
)

// StateKey addresses one item of account/resource state. The executor
// core treats it as an opaque byte string; only the VM collaborator
// assigns it meaning.
type StateKey string

// StateView is the read-only surface the VM consumes to resolve prior
// writes while executing a transaction. *View satisfies it directly.
type StateView interface {
	Get(key StateKey) ([]byte, bool, error)
}

// PersistedReader is the read-only view onto durable state a View
// chain bottoms out at: the latest state committed to the Storage
// Adapter. Implemented by the storage package.
type PersistedReader interface {
	GetStateValue(key StateKey) (value []byte, found bool, err error)
}

// View is a speculative, immutable snapshot of ledger state: a write
// set layered on top of a parent View, bottoming out at a
// PersistedReader. This is the same shape as the teacher's
// state.Snapshot, generalized from a fixed pair of
// ContractsTree/NonceTree to an arbitrary key/value write set, and
// from a single flat structure to a chain of copy-on-write layers so
// that sibling speculative blocks can share everything below their
// fork point (spec.md §3, "Ledger View").
type View struct {
	id     uint64
	parent *View
	writes map[StateKey][]byte
	tree   StateTree
	base   PersistedReader
}

var viewSeq uint64

// nextViewID hands out small monotonically increasing identifiers so
// log lines and tests can name a View without printing its full
// write-set; it is not persisted and carries no ledger meaning.
func nextViewID() uint64 {
	viewSeq++
	return viewSeq
}

// NewBaseView returns the View at the root of a layer chain, reading
// through directly to persisted storage and committing to the given
// state tree. This
// is what the executor builds on top of the storage adapter's latest
// committed state before applying any speculative blocks.
func NewBaseView(base PersistedReader, tree StateTree) *View {
	return &View{id: nextViewID(), base: base, tree: tree}
}

// ID returns a process-local identifier for this View, unique among
// Views created in the same run.
func (v *View) ID() uint64 {
	return v.id
}

// RootHash returns the state tree root committed to by this View.
func (v *View) RootHash() bhash.Hash {
	return v.tree.RootHash()
}

// Get resolves key by walking the write-set chain from v up through
// its ancestors, falling back to the persisted base when no layer in
// the chain has written it (spec.md §3: "the most recent write to that
// key in the tree of speculative blocks..., or else... the persisted
// state").
func (v *View) Get(key StateKey) ([]byte, bool, error) {
	for cur := v; cur != nil; cur = cur.parent {
		if cur.writes != nil {
			if val, ok := cur.writes[key]; ok {
				return val, true, nil
			}
		}
		if cur.parent == nil {
			return cur.base.GetStateValue(key)
		}
	}
	return nil, false, nil
}

// Extend layers a write-set on top of v and returns the child View,
// whose state tree is v's committed tree with the same writes
// applied. v itself is never mutated, so v can still be
// read (and further extended down another fork) after this call.
func (v *View) Extend(writes map[StateKey][]byte) (*View, error) {
	flat := make(map[string][]byte, len(writes))
	for k, val := range writes {
		flat[string(k)] = val
	}
	tree, err := v.tree.Apply(flat)
	if err != nil {
		return nil, err
	}
	child := &View{
		id:     nextViewID(),
		parent: v,
		writes: writes,
		tree:   tree,
		base:   v.base,
	}
	return child, nil
}

// Flatten collapses the write-set chain from the persisted base up to
// v into a single map, for handing to storage at commit time. Later
// (closer-to-v) writes to the same key shadow earlier ones.
func (v *View) Flatten() map[StateKey][]byte {
	var chain []*View
	for cur := v; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := map[StateKey][]byte{}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, val := range chain[i].writes {
			out[k] = val
		}
	}
	return out
}
