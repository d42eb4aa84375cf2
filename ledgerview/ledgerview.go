package ledgerview

import (
	"ledgercore/blockexec/bhash"
)

// LedgerView bundles the accumulator and the state checkpoint that
// together answer "what does the ledger look like as of this point" —
// spec.md §3's definition of a Ledger View, `{ accumulator,
// state_checkpoint }` — as a single value threaded through Block Tree
// nodes and the Chunk Output stage.
type LedgerView struct {
	Accumulator Accumulator
	State       *View
}

// NewLedgerView pairs an accumulator with a state view at the same
// point in ledger history. Callers constructing the root ledger view
// (the last committed position) pass an Accumulator restored from the
// storage adapter's tree state alongside a base View over persisted
// state.
func NewLedgerView(acc Accumulator, state *View) LedgerView {
	return LedgerView{Accumulator: acc, State: state}
}

// RootHash returns the state tree root of the checkpoint. Combined with
// Accumulator.RootHash, this is what a StateComputeResult reports to
// consensus.
func (lv LedgerView) RootHash() bhash.Hash {
	return lv.State.RootHash()
}

// NumLeaves is the accumulator's leaf count, i.e. the next version this
// ledger view would assign to a newly appended transaction.
func (lv LedgerView) NumLeaves() uint64 {
	return lv.Accumulator.NumLeaves()
}

// Extend layers a write-set and the hashes of the transactions that
// produced it on top of lv, returning the resulting LedgerView. lv is
// left unmodified, so sibling speculative blocks can each Extend the
// same parent independently.
func (lv LedgerView) Extend(writes map[StateKey][]byte, txnHashes ...bhash.Hash) (LedgerView, error) {
	nextState, err := lv.State.Extend(writes)
	if err != nil {
		return LedgerView{}, err
	}
	return LedgerView{
		Accumulator: lv.Accumulator.Append(txnHashes...),
		State:       nextState,
	}, nil
}
