package ledgerview

import (
	"testing"

	"ledgercore/blockexec/bhash"
)

func TestAccumulatorEmptyRoot(t *testing.T) {
	a := NewAccumulator()
	if a.NumLeaves() != 0 {
		t.Fatalf("NumLeaves() = %d, want 0", a.NumLeaves())
	}
	// Two empty accumulators must agree; the value itself doesn't matter.
	if NewAccumulator().RootHash() != a.RootHash() {
		t.Fatalf("empty accumulator root is not stable")
	}
}

func TestAccumulatorAppendIsPure(t *testing.T) {
	a := NewAccumulator()
	h1 := bhash.Sum256([]byte("txn1"))
	b := a.Append(h1)
	if a.NumLeaves() != 0 {
		t.Fatalf("Append mutated receiver: NumLeaves() = %d, want 0", a.NumLeaves())
	}
	if b.NumLeaves() != 1 {
		t.Fatalf("NumLeaves() = %d, want 1", b.NumLeaves())
	}
}

func TestAccumulatorRootDependsOnContent(t *testing.T) {
	h1 := bhash.Sum256([]byte("txn1"))
	h2 := bhash.Sum256([]byte("txn2"))

	a := NewAccumulator().Append(h1)
	b := NewAccumulator().Append(h2)
	if a.RootHash() == b.RootHash() {
		t.Fatalf("distinct single-leaf accumulators produced the same root")
	}
}

func TestAccumulatorBatchAppendMatchesOneAtATime(t *testing.T) {
	hashes := []bhash.Hash{
		bhash.Sum256([]byte("a")),
		bhash.Sum256([]byte("b")),
		bhash.Sum256([]byte("c")),
		bhash.Sum256([]byte("d")),
		bhash.Sum256([]byte("e")),
	}

	batch := NewAccumulator().Append(hashes...)

	sequential := NewAccumulator()
	for _, h := range hashes {
		sequential = sequential.Append(h)
	}

	if batch.RootHash() != sequential.RootHash() {
		t.Fatalf("appending in one call vs one at a time produced different roots")
	}
	if batch.NumLeaves() != sequential.NumLeaves() {
		t.Fatalf("NumLeaves mismatch: batch=%d sequential=%d", batch.NumLeaves(), sequential.NumLeaves())
	}
}

func TestRestoreAccumulatorContinuesIdentically(t *testing.T) {
	hashes := []bhash.Hash{
		bhash.Sum256([]byte("a")),
		bhash.Sum256([]byte("b")),
		bhash.Sum256([]byte("c")),
	}
	full := NewAccumulator().Append(hashes...)

	// Split the same history into "already persisted" and "freshly
	// appended" halves, the way a restart would: restore from a tree
	// state snapshot, then append the remaining leaves.
	persisted := NewAccumulator().Append(hashes[:2]...)
	restored := RestoreAccumulator(persisted.NumLeaves(), persisted.FrozenSubtrees())
	continued := restored.Append(hashes[2:]...)

	if continued.RootHash() != full.RootHash() {
		t.Fatalf("restored accumulator diverged from one built in a single run (P5 continuity)")
	}
	if continued.NumLeaves() != full.NumLeaves() {
		t.Fatalf("NumLeaves mismatch after restore: got %d, want %d", continued.NumLeaves(), full.NumLeaves())
	}
}

func TestFrozenSubtreesIsACopy(t *testing.T) {
	a := NewAccumulator().Append(bhash.Sum256([]byte("x")))
	before := a.RootHash()
	subtrees := a.FrozenSubtrees()
	subtrees[0] = bhash.Hash{}
	if a.RootHash() != before {
		t.Fatalf("mutating the slice returned by FrozenSubtrees affected the accumulator")
	}
}
