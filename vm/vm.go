// Package vm defines the narrow capability the block execution core
// consumes from the transaction virtual machine. The VM's own
// instruction semantics are out of scope; this package only fixes the
// interface and ships a deterministic reference implementation for
// tests and the benchmark harness.
package vm

import (
	"context"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/ledgerview"
)

// Transaction is an opaque, deterministic input to the VM, addressable
// by content hash. The core never inspects Payload.
type Transaction struct {
	Payload []byte
}

// Hash returns the transaction's content hash.
func (t Transaction) Hash() bhash.Hash {
	return bhash.Sum256(t.Payload)
}

// Status classifies how a transaction fared during execution.
type Status int

const (
	// StatusExecuted means the transaction's write-set and events are
	// eligible to commit.
	StatusExecuted Status = iota
	// StatusDiscarded means the VM rejected the transaction outright
	// (e.g. a malformed payload); it never reaches storage.
	StatusDiscarded
	// StatusRetry means the transaction was valid but excluded from
	// this block because it followed a reconfiguration event; it is a
	// candidate for inclusion in a later block.
	StatusRetry
)

// Event is an opaque fact emitted by a transaction. The only event the
// core interprets is a reconfiguration, signaled out-of-band via
// TransactionOutput.Reconfig rather than by scanning Events.
type Event struct {
	Key  string
	Data []byte
}

// EpochState describes the epoch that becomes active after a
// reconfiguration. The core treats Validators as opaque; only the VM
// and consensus assign it meaning.
type EpochState struct {
	Epoch      uint64
	Validators []byte
}

// TransactionOutput is what the VM returns for a single transaction.
type TransactionOutput struct {
	WriteSet map[ledgerview.StateKey][]byte
	Events   []Event
	GasUsed  uint64
	Status   Status
	// Reconfig is non-nil iff this transaction's execution ended the
	// current epoch. Chunk Output treats its presence, not Events, as
	// the sole signal that a reconfiguration occurred (spec.md §9,
	// "reconfiguration as discriminated state").
	Reconfig *EpochState
}

// Executor is the capability the core consumes from the VM: execute a
// sequence of transactions against a fixed read view, returning one
// output per transaction in order. A real VM may internally exploit
// parallelism (configured once at process start per spec.md §9,
// "global VM concurrency"); from the core's perspective this is a
// single logical call.
type Executor interface {
	Execute(ctx context.Context, txns []Transaction, view ledgerview.StateView) ([]TransactionOutput, error)
}
