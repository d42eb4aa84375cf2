// Package ledgerview implements the append-only transaction accumulator
// and the layered state view described by the block execution core: the
// two halves of what the spec calls a Ledger View.
package ledgerview

import (
	"github.com/chain/txvm/crypto/sha3"

	"ledgercore/blockexec/bhash"
)

var (
	leafPrefix     = []byte{0x00}
	interiorPrefix = []byte{0x01}
)

func hashLeaf(txnHash bhash.Hash) bhash.Hash {
	h := sha3.New256()
	h.Write(leafPrefix)
	h.Write(txnHash.Bytes())
	var out [32]byte
	h.Sum(out[:0])
	return bhash.Hash(out)
}

func hashInterior(left, right bhash.Hash) bhash.Hash {
	h := sha3.New256()
	h.Write(interiorPrefix)
	h.Write(left.Bytes())
	h.Write(right.Bytes())
	var out [32]byte
	h.Sum(out[:0])
	return bhash.Hash(out)
}

// Accumulator is an append-only Merkle accumulator over transaction
// hashes. It tracks only the frozen subtree roots needed to extend
// itself and to compute its current root, mirroring the TreeState
// shape the Storage Adapter returns (spec.md §3, "Tree State").
//
// The teacher's protocol/merkle package only knows how to compute the
// root of a complete, already-known leaf slice (merkle.Root). The core
// needs to extend an existing accumulator by a handful of new leaves
// per block without replaying every earlier leaf, so this type keeps
// the frozen-subtree roots explicitly (one per set bit of the leaf
// count, same trick as a binary counter) instead of an explicit tree.
type Accumulator struct {
	numLeaves      uint64
	frozenSubtrees []bhash.Hash // subtree roots, largest (leftmost) first, smallest (rightmost) last
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() Accumulator {
	return Accumulator{}
}

// RestoreAccumulator rebuilds an accumulator from a Tree State snapshot
// returned by storage (spec.md §4.1, get_latest_tree_state).
func RestoreAccumulator(numLeaves uint64, frozenSubtrees []bhash.Hash) Accumulator {
	cp := make([]bhash.Hash, len(frozenSubtrees))
	copy(cp, frozenSubtrees)
	return Accumulator{numLeaves: numLeaves, frozenSubtrees: cp}
}

// NumLeaves returns the number of transaction hashes appended so far;
// this is the next version to be assigned.
func (a Accumulator) NumLeaves() uint64 {
	return a.numLeaves
}

// FrozenSubtrees exposes the frozen subtree roots, for persistence.
func (a Accumulator) FrozenSubtrees() []bhash.Hash {
	cp := make([]bhash.Hash, len(a.frozenSubtrees))
	copy(cp, a.frozenSubtrees)
	return cp
}

// RootHash returns the current accumulator root, folding the frozen
// subtrees from smallest to largest (P5 Accumulator continuity relies
// on this being a pure function of numLeaves and frozenSubtrees).
func (a Accumulator) RootHash() bhash.Hash {
	if a.numLeaves == 0 {
		return bhash.Sum256(nil)
	}
	var root bhash.Hash
	haveRoot := false
	for i := len(a.frozenSubtrees) - 1; i >= 0; i-- {
		sub := a.frozenSubtrees[i]
		if !haveRoot {
			root = sub
			haveRoot = true
			continue
		}
		root = hashInterior(sub, root)
	}
	return root
}

// Append extends the accumulator with the hashes of newly-to-commit
// transactions, in order, and returns the resulting accumulator. It
// does not mutate a.
func (a Accumulator) Append(txnHashes ...bhash.Hash) Accumulator {
	subtrees := make([]bhash.Hash, len(a.frozenSubtrees))
	copy(subtrees, a.frozenSubtrees)
	n := a.numLeaves
	for _, txnHash := range txnHashes {
		carry := hashLeaf(txnHash)
		size := uint64(1)
		// Merge the new leaf with existing subtrees of the same size,
		// the same way a binary counter carries: the last element of
		// frozenSubtrees is the smallest (most recently completed) subtree.
		for len(subtrees) > 0 && n&size != 0 {
			carry = hashInterior(subtrees[len(subtrees)-1], carry)
			subtrees = subtrees[:len(subtrees)-1]
			size <<= 1
		}
		subtrees = append(subtrees, carry)
		n++
	}
	return Accumulator{numLeaves: n, frozenSubtrees: subtrees}
}
