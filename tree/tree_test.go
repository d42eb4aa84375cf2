package tree

import (
	"testing"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/chunk"
)

func id(s string) bhash.Hash { return bhash.Sum256([]byte(s)) }

func TestNewRootBlock(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	b := tr.RootBlock()
	if b.ID != root {
		t.Fatalf("RootBlock().ID = %s, want %s", b.ID, root)
	}
	if b.NumPersistedTransactions != 0 {
		t.Fatalf("NumPersistedTransactions = %d, want 0", b.NumPersistedTransactions)
	}
}

func TestAddBlockAndGetBlocks(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)

	a := id("a")
	if _, err := tr.AddBlock(root, a, &chunk.ExecutedChunk{}); err != nil {
		t.Fatalf("AddBlock: %s", err)
	}

	blocks, err := tr.GetBlocks([]bhash.Hash{root, a})
	if err != nil {
		t.Fatalf("GetBlocks: %s", err)
	}
	if blocks[0].ID != root || blocks[1].ID != a {
		t.Fatalf("GetBlocks returned blocks out of order")
	}
}

func TestAddBlockMissingParent(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	_, err := tr.AddBlock(id("nonexistent"), id("a"), &chunk.ExecutedChunk{})
	if err == nil {
		t.Fatalf("expected an error adding a block under a missing parent")
	}
}

func TestAddBlockIdempotentRetry(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	a := id("a")
	out1 := &chunk.ExecutedChunk{}
	first, err := tr.AddBlock(root, a, out1)
	if err != nil {
		t.Fatalf("AddBlock: %s", err)
	}
	// A second AddBlock with the same blockID (e.g. consensus replaying
	// execute_block) must return the original node rather than
	// overwriting it with a different output.
	out2 := &chunk.ExecutedChunk{}
	second, err := tr.AddBlock(root, a, out2)
	if err != nil {
		t.Fatalf("AddBlock retry: %s", err)
	}
	if second != first {
		t.Fatalf("AddBlock retry returned a different node than the original")
	}
	if second.Output != out1 {
		t.Fatalf("AddBlock retry overwrote the original block's output")
	}
}

func TestGetBlocksOptMissingIsNil(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	got := tr.GetBlocksOpt([]bhash.Hash{root, id("missing")})
	if got[0] == nil {
		t.Fatalf("GetBlocksOpt returned nil for a present block")
	}
	if got[1] != nil {
		t.Fatalf("GetBlocksOpt returned non-nil for a missing block")
	}
}

func TestGetBlocksMissingErrors(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	_, err := tr.GetBlocks([]bhash.Hash{root, id("missing")})
	if err == nil {
		t.Fatalf("expected an error for a missing block id")
	}
	nf, ok := err.(*NotFoundError)
	if !ok {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
	if nf.BlockID != id("missing") {
		t.Fatalf("NotFoundError.BlockID = %s, want the missing id", nf.BlockID)
	}
}

// TestPruneKeepsTargetSubtreeOnly builds a fork:
//
//	root -> a -> b
//	     -> c
//
// then prunes to b. Only b (and b's own descendants, of which there
// are none here) should survive; a, the just-committed ancestor, and
// c, the sibling fork, must both be gone.
func TestPruneKeepsTargetSubtreeOnly(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)

	a, b, c := id("a"), id("b"), id("c")
	if _, err := tr.AddBlock(root, a, &chunk.ExecutedChunk{}); err != nil {
		t.Fatalf("AddBlock a: %s", err)
	}
	if _, err := tr.AddBlock(a, b, &chunk.ExecutedChunk{}); err != nil {
		t.Fatalf("AddBlock b: %s", err)
	}
	if _, err := tr.AddBlock(root, c, &chunk.ExecutedChunk{}); err != nil {
		t.Fatalf("AddBlock c: %s", err)
	}

	if err := tr.Prune(b, 4); err != nil {
		t.Fatalf("Prune: %s", err)
	}

	if tr.RootBlock().ID != b {
		t.Fatalf("RootBlock().ID = %s, want %s", tr.RootBlock().ID, b)
	}
	if tr.RootBlock().NumPersistedTransactions != 5 {
		t.Fatalf("NumPersistedTransactions = %d, want 5 (newPersistedVersion+1)", tr.RootBlock().NumPersistedTransactions)
	}
	if !tr.RootBlock().ParentID.IsZero() {
		t.Fatalf("new root's ParentID = %s, want zero", tr.RootBlock().ParentID)
	}

	if _, err := tr.GetBlocks([]bhash.Hash{root}); err == nil {
		t.Fatalf("old root survived prune")
	}
	if _, err := tr.GetBlocks([]bhash.Hash{a}); err == nil {
		t.Fatalf("ancestor a survived prune")
	}
	if _, err := tr.GetBlocks([]bhash.Hash{c}); err == nil {
		t.Fatalf("sibling fork c survived prune")
	}
}

// TestPruneKeepsDescendants extends the fork with a child of b and
// confirms that descendant survives the prune to b.
func TestPruneKeepsDescendants(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)

	a, b, d := id("a"), id("b"), id("d")
	mustAdd := func(parent, child bhash.Hash) {
		t.Helper()
		if _, err := tr.AddBlock(parent, child, &chunk.ExecutedChunk{}); err != nil {
			t.Fatalf("AddBlock %s -> %s: %s", parent, child, err)
		}
	}
	mustAdd(root, a)
	mustAdd(a, b)
	mustAdd(b, d)

	if err := tr.Prune(b, 1); err != nil {
		t.Fatalf("Prune: %s", err)
	}

	blocks, err := tr.GetBlocks([]bhash.Hash{b, d})
	if err != nil {
		t.Fatalf("descendant d did not survive prune to b: %s", err)
	}
	if blocks[1].ParentID != b {
		t.Fatalf("d.ParentID = %s, want %s", blocks[1].ParentID, b)
	}
}

func TestPruneMissingTarget(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	if err := tr.Prune(id("missing"), 0); err == nil {
		t.Fatalf("expected an error pruning to a missing block")
	}
}

func TestResetDiscardsSpeculativeState(t *testing.T) {
	root := id("root")
	tr := New(root, &chunk.ExecutedChunk{}, 0)
	a := id("a")
	if _, err := tr.AddBlock(root, a, &chunk.ExecutedChunk{}); err != nil {
		t.Fatalf("AddBlock: %s", err)
	}

	newRoot := id("new-root")
	tr.Reset(newRoot, &chunk.ExecutedChunk{}, 10)

	if tr.RootBlock().ID != newRoot {
		t.Fatalf("RootBlock().ID = %s, want %s", tr.RootBlock().ID, newRoot)
	}
	if _, err := tr.GetBlocks([]bhash.Hash{root, a}); err == nil {
		t.Fatalf("old blocks survived Reset")
	}
}
