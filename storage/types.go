// Package storage implements the Storage Adapter: the narrow
// persistence boundary the block execution core consumes from the
// physical ledger store. SQLiteAdapter is the concrete engine this
// repository ships, built on database/sql and the mattn/go-sqlite3
// driver, the same pairing the teacher used for its own block store.
package storage

import (
	"context"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/ledgerview"
	"ledgercore/blockexec/vm"
)

// TreeState is the snapshot storage returns describing the persisted
// ledger's shape: how many transactions it holds, the accumulator's
// frozen subtrees, and the current state tree root.
type TreeState struct {
	NumTransactions           uint64
	StateRoot                 bhash.Hash
	AccumulatorFrozenSubtrees []bhash.Hash
}

// PersistedTransaction is one committed transaction as stored: the
// original payload plus everything execution produced for it.
type PersistedTransaction struct {
	Version  uint64
	Hash     bhash.Hash
	Payload  []byte
	WriteSet map[ledgerview.StateKey][]byte
	Events   []vm.Event
	GasUsed  uint64
	Status   vm.Status
}

// LedgerInfo is the quorum-signed statement consensus produces binding
// a version to a block id, accumulator root, and (at an epoch
// boundary) the next epoch's validator state.
type LedgerInfo struct {
	Version          uint64
	ConsensusBlockID bhash.Hash
	AccumulatorRoot  bhash.Hash
	StateRoot        bhash.Hash
	TimestampUsecs   uint64
	NextEpochState   *vm.EpochState
}

// LedgerInfoWithSignatures pairs a LedgerInfo with the quorum
// signatures attesting it. The core treats Signatures as opaque; it
// neither produces nor verifies them.
type LedgerInfoWithSignatures struct {
	LedgerInfo LedgerInfo
	Signatures [][]byte
}

// Adapter is the five-operation capability the core consumes from
// storage, per spec.md §4.1. It also satisfies ledgerview.PersistedReader
// so a View can read straight through to it.
type Adapter interface {
	GetLatestTreeState(ctx context.Context) (TreeState, error)
	StateViewAtVersion(ctx context.Context, version *uint64) (*ledgerview.View, error)
	FetchSyncedVersion(ctx context.Context) (uint64, error)
	SaveTransactions(ctx context.Context, txns []PersistedTransaction, firstVersion uint64, ledgerInfo *LedgerInfoWithSignatures) error
	GetLatestLedgerInfo(ctx context.Context) (*LedgerInfoWithSignatures, bool, error)

	ledgerview.PersistedReader
}
