// Package tree implements the in-memory speculative block tree: a DAG
// of executed-but-not-yet-committed blocks anchored at the last
// committed position. It is exclusively owned and mutated by the
// block executor; other goroutines only ever read it through the
// executor's own methods.
package tree

import (
	"fmt"
	"sync"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/chunk"
)

// Block is one node of the speculative tree.
type Block struct {
	ID                       bhash.Hash
	ParentID                 bhash.Hash
	Output                   *chunk.ExecutedChunk
	NumPersistedTransactions uint64

	children []bhash.Hash
}

// NotFoundError reports that a referenced block id is absent from the
// tree — either a missing parent during execute_block, or a missing
// id passed to GetBlocks.
type NotFoundError struct {
	BlockID bhash.Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("block %s not found in tree", e.BlockID)
}

// Tree is the speculative frontier, guarded by a single mutex so that
// readers (e.g. an HTTP status handler) never observe a torn map
// during a commit-time prune.
type Tree struct {
	mu     sync.Mutex
	root   bhash.Hash
	blocks map[bhash.Hash]*Block
}

// New constructs a tree with a single root block representing the
// persisted tip: id is the last committed consensus block id (or the
// zero hash before the first commit), and rootOutput carries the
// accumulator/state view at that version.
func New(rootID bhash.Hash, rootOutput *chunk.ExecutedChunk, numPersistedTransactions uint64) *Tree {
	t := &Tree{}
	t.reset(rootID, rootOutput, numPersistedTransactions)
	return t
}

func (t *Tree) reset(rootID bhash.Hash, rootOutput *chunk.ExecutedChunk, numPersistedTransactions uint64) {
	t.root = rootID
	t.blocks = map[bhash.Hash]*Block{
		rootID: {
			ID:                       rootID,
			Output:                   rootOutput,
			NumPersistedTransactions: numPersistedTransactions,
		},
	}
}

// Reset discards all speculative state and rebuilds the root from the
// values given (typically re-read from storage after a state-sync
// jump).
func (t *Tree) Reset(rootID bhash.Hash, rootOutput *chunk.ExecutedChunk, numPersistedTransactions uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset(rootID, rootOutput, numPersistedTransactions)
}

// RootBlock returns the current anchor. It is always present.
func (t *Tree) RootBlock() *Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocks[t.root]
}

// GetBlocksOpt returns one *Block per id, preserving order; a missing
// id yields a nil entry rather than an error.
func (t *Tree) GetBlocksOpt(ids []bhash.Hash) []*Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Block, len(ids))
	for i, id := range ids {
		out[i] = t.blocks[id]
	}
	return out
}

// GetBlocks is like GetBlocksOpt but fails if any id is missing.
func (t *Tree) GetBlocks(ids []bhash.Hash) ([]*Block, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Block, len(ids))
	for i, id := range ids {
		b, ok := t.blocks[id]
		if !ok {
			return nil, &NotFoundError{BlockID: id}
		}
		out[i] = b
	}
	return out, nil
}

// AddBlock attaches a new child to parentID. If blockID already
// exists in the tree, AddBlock is a no-op and returns the existing
// node (the idempotent-retry case spec.md's execute_block relies on).
// It fails if parentID is not present.
func (t *Tree) AddBlock(parentID, blockID bhash.Hash, output *chunk.ExecutedChunk) (*Block, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.blocks[blockID]; ok {
		return existing, nil
	}
	parent, ok := t.blocks[parentID]
	if !ok {
		return nil, &NotFoundError{BlockID: parentID}
	}
	b := &Block{ID: blockID, ParentID: parentID, Output: output}
	t.blocks[blockID] = b
	parent.children = append(parent.children, blockID)
	return b, nil
}

// Prune promotes targetID to be the new root and sets its
// NumPersistedTransactions to newPersistedVersion+1. Every block that
// is not targetID or one of its descendants is removed (invariant
// I3): the blocks on the path from the old root to targetID were just
// persisted by commit_blocks and no longer need a speculative copy,
// and every other branch forked off that path is now provably
// un-committable. targetID must already be present in the tree.
func (t *Tree) Prune(targetID bhash.Hash, newPersistedVersion uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.blocks[targetID]
	if !ok {
		return &NotFoundError{BlockID: targetID}
	}

	kept := map[bhash.Hash]bool{targetID: true}
	queue := append([]bhash.Hash(nil), target.children...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if kept[id] {
			continue
		}
		kept[id] = true
		if b, ok := t.blocks[id]; ok {
			queue = append(queue, b.children...)
		}
	}

	next := make(map[bhash.Hash]*Block, len(kept))
	for id := range kept {
		next[id] = t.blocks[id]
	}

	target.ParentID = bhash.Hash{}
	target.NumPersistedTransactions = newPersistedVersion + 1
	t.root = targetID
	t.blocks = next
	return nil
}
