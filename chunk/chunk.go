// Package chunk implements the pure execute-then-apply pipeline that
// turns a slice of transactions and a parent ledger view into an
// executed chunk: by_transaction_execution followed by
// apply_to_ledger, exactly the two stages the block executor drives
// per block.
package chunk

import (
	"context"

	"github.com/chain/txvm/errors"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/ledgerview"
	"ledgercore/blockexec/vm"
)

// TxResult pairs a transaction with the output the VM produced for it.
type TxResult struct {
	Txn    vm.Transaction
	Output vm.TransactionOutput
}

// Output is the raw result of feeding a slice of transactions through
// the VM, before it has been layered onto a parent ledger view.
// ToCommit, Discarded, and Retry partition the input txns exactly
// once each.
type Output struct {
	ToCommit  []TxResult
	Discarded []vm.Transaction
	Retry     []vm.Transaction
	// Reconfig is non-nil iff one of the ToCommit transactions ended
	// the epoch. Once set, every later input transaction is routed to
	// Retry rather than executed further.
	Reconfig *vm.EpochState
}

// HasReconfiguration reports whether this chunk ended an epoch.
func (o *Output) HasReconfiguration() bool {
	return o != nil && o.Reconfig != nil
}

// ExecutedChunk is the unit produced by executing one block (or, for
// state-sync, one arbitrary contiguous group of txns): the committed
// transactions, the resulting ledger view, and an optional
// reconfiguration descriptor.
type ExecutedChunk struct {
	ToCommit       []TxResult
	ResultView     ledgerview.LedgerView
	NextEpochState *vm.EpochState
}

// HasReconfiguration reports whether this chunk ended an epoch.
func (c *ExecutedChunk) HasReconfiguration() bool {
	return c != nil && c.NextEpochState != nil
}

// ReconfigSuffix builds the zero-txn chunk a descendant of a
// reconfiguring block must be: it executes nothing, and simply
// inherits the parent's result view and epoch state unchanged
// (spec.md §4.2, "Reconfiguration semantics").
func (c *ExecutedChunk) ReconfigSuffix() *ExecutedChunk {
	return &ExecutedChunk{
		ResultView:     c.ResultView,
		NextEpochState: c.NextEpochState,
	}
}

// ByTransactionExecution feeds txns to the VM against view, then
// partitions the results: everything up to and including the first
// transaction that reconfigures the epoch is eligible to commit;
// everything after it is excluded and marked Retry; anything the VM
// discarded outright is marked Discarded and never retried.
func ByTransactionExecution(ctx context.Context, executor vm.Executor, txns []vm.Transaction, view ledgerview.StateView) (*Output, error) {
	if len(txns) == 0 {
		return &Output{}, nil
	}
	outs, err := executor.Execute(ctx, txns, view)
	if err != nil {
		return nil, errors.Wrap(err, "vm execute block")
	}
	if len(outs) != len(txns) {
		return nil, errors.New("vm returned a different number of outputs than transactions")
	}

	out := &Output{}
	reconfigured := false
	for i, txn := range txns {
		o := outs[i]
		switch {
		case reconfigured:
			out.Retry = append(out.Retry, txn)
		case o.Status == vm.StatusDiscarded:
			out.Discarded = append(out.Discarded, txn)
		default:
			out.ToCommit = append(out.ToCommit, TxResult{Txn: txn, Output: o})
			if o.Reconfig != nil {
				out.Reconfig = o.Reconfig
				reconfigured = true
			}
		}
	}
	return out, nil
}

// ApplyToLedger extends parentView's accumulator with the hashes of
// the to-commit transactions and layers their write-sets onto its
// state checkpoint, producing the new ExecutedChunk plus the discarded
// and retry partitions carried over from Output.
func (o *Output) ApplyToLedger(parentView ledgerview.LedgerView) (*ExecutedChunk, []vm.Transaction, []vm.Transaction, error) {
	view := parentView
	for _, r := range o.ToCommit {
		hash := r.Txn.Hash()
		var err error
		view, err = view.Extend(r.Output.WriteSet, hash)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "extending result view")
		}
	}
	chunk := &ExecutedChunk{
		ToCommit:       o.ToCommit,
		ResultView:     view,
		NextEpochState: o.Reconfig,
	}
	return chunk, o.Discarded, o.Retry, nil
}

// TransactionsToCommit returns the raw transactions (without their
// outputs) that this chunk contributes to the committed log, in order.
func (c *ExecutedChunk) TransactionsToCommit() []vm.Transaction {
	txns := make([]vm.Transaction, len(c.ToCommit))
	for i, r := range c.ToCommit {
		txns[i] = r.Txn
	}
	return txns
}

// Hashes returns the content hashes of the chunk's to-commit
// transactions, in order — the leaves the accumulator was extended
// with.
func (c *ExecutedChunk) Hashes() []bhash.Hash {
	hashes := make([]bhash.Hash, len(c.ToCommit))
	for i, r := range c.ToCommit {
		hashes[i] = r.Txn.Hash()
	}
	return hashes
}
