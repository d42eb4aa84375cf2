// Package executor implements the Block Executor: the public face
// that drives execution and commit across the speculative Block Tree
// and the Storage Adapter.
package executor

import (
	"context"

	"github.com/sirupsen/logrus"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/chunk"
	"ledgercore/blockexec/ledgerview"
	"ledgercore/blockexec/storage"
	"ledgercore/blockexec/tree"
	"ledgercore/blockexec/vm"
)

// StateComputeResult is what execute_block hands back to consensus:
// the commitment consensus votes on, plus enough bookkeeping to know
// what it covers.
type StateComputeResult struct {
	RootHash        bhash.Hash
	AccumulatorRoot bhash.Hash
	FirstVersion    uint64
	NumTransactions uint64
	StatusPerTxn    []vm.Status
	NextEpochState  *vm.EpochState
}

// BlockExecutor is the public face of the block execution core:
// execute_block, commit_blocks, committed_block_id, reset.
type BlockExecutor struct {
	db   storage.Adapter
	vm   vm.Executor
	tree *tree.Tree
	log  *logrus.Entry

	// VMExecuteHook and CommitBlocksHook are failure-injection points
	// for tests, matching the "executor::vm_execute_block" and
	// "executor::commit_blocks" named fail points in the source this
	// was ported from. Production wiring never sets them.
	VMExecuteHook    func() error
	CommitBlocksHook func() error

	// OnCommit, if set, is called with the ledger info CommitBlocks
	// just persisted, after the persist and prune both succeed. The
	// status daemon wires this to a Broadcaster so subscribers observe
	// new ledger infos as they land.
	OnCommit func(*storage.LedgerInfoWithSignatures)
}

// New constructs a BlockExecutor, loading the current root position
// from storage.
func New(ctx context.Context, db storage.Adapter, vmExec vm.Executor) (*BlockExecutor, error) {
	be := &BlockExecutor{
		db:  db,
		vm:  vmExec,
		log: logrus.WithField("component", "executor"),
	}
	if err := be.loadRoot(ctx); err != nil {
		return nil, err
	}
	return be, nil
}

func (be *BlockExecutor) loadRoot(ctx context.Context) error {
	treeState, err := be.db.GetLatestTreeState(ctx)
	if err != nil {
		return &StorageError{Err: err}
	}
	li, hasLI, err := be.db.GetLatestLedgerInfo(ctx)
	if err != nil {
		return &StorageError{Err: err}
	}

	rootID := bhash.Zero
	if hasLI {
		rootID = li.LedgerInfo.ConsensusBlockID
	}

	acc := ledgerview.RestoreAccumulator(treeState.NumTransactions, treeState.AccumulatorFrozenSubtrees)
	state := ledgerview.NewBaseView(be.db, ledgerview.FromPersistedRoot(treeState.StateRoot))
	rootView := ledgerview.NewLedgerView(acc, state)

	var nextEpoch *vm.EpochState
	if hasLI {
		nextEpoch = li.LedgerInfo.NextEpochState
	}
	rootChunk := &chunk.ExecutedChunk{
		ResultView:     rootView,
		NextEpochState: nextEpoch,
	}
	be.tree = tree.New(rootID, rootChunk, treeState.NumTransactions)
	return nil
}

// CommittedBlockID returns root_block().id.
func (be *BlockExecutor) CommittedBlockID() bhash.Hash {
	return be.tree.RootBlock().ID
}

// Reset discards all speculative state and rebuilds the root from
// storage, for use after a state-sync jump.
func (be *BlockExecutor) Reset(ctx context.Context) error {
	return be.loadRoot(ctx)
}

// ExecuteBlock runs txns (identified by blockID) against the ledger
// view inherited from parentID and attaches the result to the tree.
func (be *BlockExecutor) ExecuteBlock(ctx context.Context, blockID bhash.Hash, txns []vm.Transaction, parentID bhash.Hash) (StateComputeResult, error) {
	log := be.log.WithFields(logrus.Fields{"block_id": blockID, "parent_id": parentID})

	found := be.tree.GetBlocksOpt([]bhash.Hash{blockID, parentID})
	existing, parent := found[0], found[1]
	if existing != nil {
		log.WithField("event", "execute_block_retry").Debug("block already executed, returning cached result")
		firstVersion := existing.Output.ResultView.Accumulator.NumLeaves() - uint64(len(existing.Output.ToCommit))
		return computeResult(existing, firstVersion), nil
	}
	if parent == nil {
		return StateComputeResult{}, &NotFoundError{BlockID: parentID}
	}

	var out *chunk.ExecutedChunk
	if parentID != be.tree.RootBlock().ID && parent.Output.HasReconfiguration() {
		log.WithField("event", "reconfig_suffix").Debug("parent reconfigured; executing zero-txn suffix")
		out = parent.Output.ReconfigSuffix()
	} else {
		if be.VMExecuteHook != nil {
			if err := be.VMExecuteHook(); err != nil {
				return StateComputeResult{}, &VMError{Err: err}
			}
		}
		rawOutput, err := chunk.ByTransactionExecution(ctx, be.vm, txns, parent.Output.ResultView.State)
		if err != nil {
			return StateComputeResult{}, &VMError{Err: err}
		}
		out, _, _, err = rawOutput.ApplyToLedger(parent.Output.ResultView)
		if err != nil {
			return StateComputeResult{}, &VMError{Err: err}
		}
	}

	attached, err := be.tree.AddBlock(parentID, blockID, out)
	if err != nil {
		return StateComputeResult{}, &NotFoundError{BlockID: parentID}
	}

	log.WithField("event", "execute_block").Info("executed block")
	return computeResult(attached, parent.Output.ResultView.Accumulator.NumLeaves()), nil
}

func computeResult(block *tree.Block, firstVersion uint64) StateComputeResult {
	statuses := make([]vm.Status, len(block.Output.ToCommit))
	for i, r := range block.Output.ToCommit {
		statuses[i] = r.Output.Status
	}
	return StateComputeResult{
		RootHash:        block.Output.ResultView.RootHash(),
		AccumulatorRoot: block.Output.ResultView.Accumulator.RootHash(),
		FirstVersion:    firstVersion,
		NumTransactions: uint64(len(block.Output.ToCommit)),
		StatusPerTxn:    statuses,
		NextEpochState:  block.Output.NextEpochState,
	}
}

// CommitBlocks flattens the outputs of block_ids in order, persists
// them atomically, and prunes the tree to the new root.
func (be *BlockExecutor) CommitBlocks(ctx context.Context, blockIDs []bhash.Hash, ledgerInfo storage.LedgerInfoWithSignatures) error {
	root := be.tree.RootBlock()
	log := be.log.WithField("target_version", ledgerInfo.LedgerInfo.Version)

	if root.NumPersistedTransactions == ledgerInfo.LedgerInfo.Version+1 {
		log.WithField("event", "commit_blocks_retry").Debug("already committed through this version")
		return nil
	}

	blocks, err := be.tree.GetBlocks(blockIDs)
	if err != nil {
		if nf, ok := err.(*tree.NotFoundError); ok {
			return &NotFoundError{BlockID: nf.BlockID}
		}
		return &StorageError{Err: err}
	}

	var toCommit []chunk.TxResult
	for _, b := range blocks {
		toCommit = append(toCommit, b.Output.ToCommit...)
	}

	firstVersion := root.Output.ResultView.Accumulator.NumLeaves()
	targetVersion := ledgerInfo.LedgerInfo.Version
	if firstVersion+uint64(len(toCommit)) != targetVersion+1 {
		return &BadNumTxnsToCommitError{
			FirstVersion:  firstVersion,
			ToCommit:      uint64(len(toCommit)),
			TargetVersion: targetVersion,
		}
	}

	if be.CommitBlocksHook != nil {
		if err := be.CommitBlocksHook(); err != nil {
			return &StorageError{Err: err}
		}
	}

	persisted := toPersisted(firstVersion, toCommit)
	if err := be.db.SaveTransactions(ctx, persisted, firstVersion, &ledgerInfo); err != nil {
		return &StorageError{Err: err}
	}

	targetID := blockIDs[len(blockIDs)-1]
	if err := be.tree.Prune(targetID, ledgerInfo.LedgerInfo.Version); err != nil {
		log.WithField("event", "prune_failed").WithError(err).Fatal("prune failed after successful persist; aborting")
		return &FatalError{Err: err}
	}

	log.WithField("event", "commit_blocks").Info("committed blocks")
	if be.OnCommit != nil {
		be.OnCommit(&ledgerInfo)
	}
	return nil
}

func toPersisted(firstVersion uint64, results []chunk.TxResult) []storage.PersistedTransaction {
	out := make([]storage.PersistedTransaction, len(results))
	for i, r := range results {
		out[i] = storage.PersistedTransaction{
			Version:  firstVersion + uint64(i),
			Hash:     r.Txn.Hash(),
			Payload:  r.Txn.Payload,
			WriteSet: r.Output.WriteSet,
			Events:   r.Output.Events,
			GasUsed:  r.Output.GasUsed,
			Status:   r.Output.Status,
		}
	}
	return out
}
