package ledgerview

import (
	"github.com/chain/txvm/protocol/patricia"

	"ledgercore/blockexec/bhash"
)

// StateTree commits to the live key/value state as a Merkle patricia
// tree, following exactly the pattern the teacher's state.Snapshot uses
// for its ContractsTree: a set membership tree whose items are
// commitments, mutated by deleting a key's old commitment (if any) and
// inserting its new one. patricia.Tree is itself a persistent,
// copy-on-write structure (see vendored protocol/patricia), so Apply
// returns a new StateTree sharing unmodified subtrees with its parent
// rather than deep-copying.
//
// The patricia tree gives us a root hash; it is not used for point
// lookups (it only knows whether a given commitment is present, not the
// value behind a key). Point lookups go through View's logical overlay
// chain instead (see view.go), exactly as spec.md §3 describes reads
// being served by "the most-recent write... else recursively in the
// parent... else the persisted state".
type StateTree struct {
	// baseRoot is the root hash of everything below this tree's own
	// patricia commitments: either the zero hash (a brand new ledger)
	// or the state root storage last persisted. RootHash folds it in
	// so a StateTree restored at a non-empty persisted version reports
	// the right root without replaying every historical key.
	baseRoot bhash.Hash
	commitments *patricia.Tree
	// liveKeys tracks key -> current commitment item, so that
	// overwriting a key can delete its previous commitment instead of
	// leaving a stale leaf in the tree.
	liveKeys map[string][]byte
}

// EmptyStateTree returns a state tree with no committed keys, rooted
// at the zero hash.
func EmptyStateTree() StateTree {
	return StateTree{commitments: new(patricia.Tree), liveKeys: map[string][]byte{}}
}

// FromPersistedRoot returns a state tree whose RootHash folds in a
// root persisted by storage at some earlier version, with no local
// commitments layered on yet. Used to resume a ledger view from the
// Storage Adapter's latest tree state without replaying history.
func FromPersistedRoot(root bhash.Hash) StateTree {
	return StateTree{baseRoot: root, commitments: new(patricia.Tree), liveKeys: map[string][]byte{}}
}

func commitmentItem(key string, value []byte) []byte {
	h := bhash.Sum256(append([]byte(key+"\x00"), value...))
	item := make([]byte, 0, len(key)+32)
	item = append(item, []byte(key)...)
	item = append(item, h.Bytes()...)
	return item
}

// RootHash returns the Merkle root over the tree's current
// commitments, folded together with the persisted baseline it was
// restored from (if any).
func (t StateTree) RootHash() bhash.Hash {
	local := t.commitments.RootHash()
	if t.baseRoot.IsZero() {
		return bhash.Hash(local)
	}
	return bhash.Sum256(append(append([]byte{}, t.baseRoot.Bytes()...), local[:]...))
}

// Apply layers a write-set (key -> new value) onto t and returns the
// resulting StateTree. t itself is left unmodified.
func (t StateTree) Apply(writes map[string][]byte) (StateTree, error) {
	next := new(patricia.Tree)
	*next = *t.commitments
	liveKeys := make(map[string][]byte, len(t.liveKeys)+len(writes))
	for k, v := range t.liveKeys {
		liveKeys[k] = v
	}
	for key, value := range writes {
		if old, ok := liveKeys[key]; ok {
			next.Delete(old)
		}
		item := commitmentItem(key, value)
		err := next.Insert(item)
		if err != nil {
			return StateTree{}, err
		}
		liveKeys[key] = item
	}
	return StateTree{baseRoot: t.baseRoot, commitments: next, liveKeys: liveKeys}, nil
}
