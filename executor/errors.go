package executor

import (
	"fmt"

	"ledgercore/blockexec/bhash"
)

// NotFoundError reports that a block id the caller referenced (a
// parent or a committed block) is absent from the tree.
type NotFoundError struct {
	BlockID bhash.Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("block not found: %s", e.BlockID)
}

// BadNumTxnsToCommitError reports that the flattened commit suffix
// does not land exactly on ledger_info.version + 1.
type BadNumTxnsToCommitError struct {
	FirstVersion   uint64
	ToCommit       uint64
	TargetVersion  uint64
}

func (e *BadNumTxnsToCommitError) Error() string {
	return fmt.Sprintf("bad number of transactions to commit: first_version=%d to_commit=%d target_version=%d",
		e.FirstVersion, e.ToCommit, e.TargetVersion)
}

// VMError wraps a non-deterministic or internal failure the VM
// returned while executing a transaction.
type VMError struct {
	Err error
}

func (e *VMError) Error() string { return "vm error: " + e.Err.Error() }
func (e *VMError) Unwrap() error { return e.Err }

// StorageError wraps a persistent backend failure (IO, corruption,
// version skew).
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage error: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// FatalError marks a condition the process cannot recover from: a
// prune failed after its storage write already succeeded. The caller
// is expected to abort rather than retry.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }
