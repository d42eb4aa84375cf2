// Package bootstrap implements the one-shot genesis pipeline: compute
// the waypoint a fresh (or catastrophically desynced) node should
// anchor to, and — if the on-disk ledger matches — commit the genesis
// transaction.
package bootstrap

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/chain/txvm/errors"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/chunk"
	"ledgercore/blockexec/ledgerview"
	"ledgercore/blockexec/storage"
	"ledgercore/blockexec/vm"
)

// GenesisRound is the consensus round of the genesis ledger info; it
// never advances. storage.LedgerInfo has no round field, so this value
// is not recorded in the ledger info runGenesis builds.
const GenesisRound = 0

// timestampKey is the write-set key a genesis transaction may use to
// record a wall-clock timestamp. It is a domain convention of this
// reference VM, not a VM-level requirement.
const timestampKey = "timestamp_usecs"

// fixedGenesisTimestampUsecs is the constant genesis timestamp kept
// around solely for GenesisOpts.UseFixedTimestamp, per the Open
// Question resolution: production bootstrap always reads the
// on-chain value instead.
const fixedGenesisTimestampUsecs = 0

// Waypoint is a compact (version, root_hash) commitment to an
// epoch-boundary ledger info, used to anchor bootstrap.
type Waypoint struct {
	Version  uint64
	RootHash bhash.Hash
}

// MarshalText renders w as "<version>:<hex(root_hash)>".
func (w Waypoint) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%d:%s", w.Version, w.RootHash)), nil
}

// UnmarshalText parses the "<version>:<hex(root_hash)>" form.
func (w *Waypoint) UnmarshalText(text []byte) error {
	s := string(text)
	i := -1
	for j, c := range s {
		if c == ':' {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("malformed waypoint %q", s)
	}
	version, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed waypoint version %q: %w", s[:i], err)
	}
	rootBytes, err := hex.DecodeString(s[i+1:])
	if err != nil {
		return fmt.Errorf("malformed waypoint root hash %q: %w", s[i+1:], err)
	}
	w.Version = version
	w.RootHash = bhash.FromBytes(rootBytes)
	return nil
}

// MismatchError reports a bootstrap precondition violation: a
// recomputed waypoint didn't match the expected one, or the genesis
// transaction didn't reconfigure.
type MismatchError struct {
	Reason string
}

func (e *MismatchError) Error() string { return "bootstrap mismatch: " + e.Reason }

// GenesisOpts tunes genesis computation for tests.
type GenesisOpts struct {
	// UseFixedTimestamp makes genesis computation use a fixed constant
	// timestamp instead of reading TimestampResource from the
	// post-genesis state view, for reproducible test fixtures. Never
	// set in production wiring.
	UseFixedTimestamp bool
}

func runGenesis(ctx context.Context, db storage.Adapter, vmExec vm.Executor, genesisTxn vm.Transaction, opts GenesisOpts) (storage.LedgerInfoWithSignatures, *chunk.ExecutedChunk, uint64, error) {
	treeState, err := db.GetLatestTreeState(ctx)
	if err != nil {
		return storage.LedgerInfoWithSignatures{}, nil, 0, errors.Wrap(err, "reading latest tree state")
	}

	acc := ledgerview.RestoreAccumulator(treeState.NumTransactions, treeState.AccumulatorFrozenSubtrees)
	state := ledgerview.NewBaseView(db, ledgerview.FromPersistedRoot(treeState.StateRoot))
	parentView := ledgerview.NewLedgerView(acc, state)

	priorEpoch := uint64(0)
	if treeState.NumTransactions > 0 {
		li, hasLI, err := db.GetLatestLedgerInfo(ctx)
		if err != nil {
			return storage.LedgerInfoWithSignatures{}, nil, 0, errors.Wrap(err, "reading latest ledger info")
		}
		if hasLI && li.LedgerInfo.NextEpochState != nil {
			priorEpoch = li.LedgerInfo.NextEpochState.Epoch
		}
	}

	rawOutput, err := chunk.ByTransactionExecution(ctx, vmExec, []vm.Transaction{genesisTxn}, parentView.State)
	if err != nil {
		return storage.LedgerInfoWithSignatures{}, nil, 0, errors.Wrap(err, "executing genesis transaction")
	}
	if len(rawOutput.ToCommit) == 0 {
		return storage.LedgerInfoWithSignatures{}, nil, 0, &MismatchError{Reason: "genesis transaction produced no committable effects"}
	}
	if rawOutput.Reconfig == nil {
		return storage.LedgerInfoWithSignatures{}, nil, 0, &MismatchError{Reason: "genesis transaction did not emit a reconfiguration"}
	}

	executed, _, _, err := rawOutput.ApplyToLedger(parentView)
	if err != nil {
		return storage.LedgerInfoWithSignatures{}, nil, 0, errors.Wrap(err, "applying genesis chunk to ledger")
	}

	newEpoch := executed.NextEpochState.Epoch
	if treeState.NumTransactions > 0 && newEpoch != priorEpoch+1 {
		return storage.LedgerInfoWithSignatures{}, nil, 0, &MismatchError{
			Reason: fmt.Sprintf("genesis must bump the epoch by exactly one: prior=%d new=%d", priorEpoch, newEpoch),
		}
	}

	// Open question resolution: always prefer the on-chain timestamp
	// the genesis transaction itself recorded, even for an empty
	// ledger's first genesis. UseFixedTimestamp exists only so tests
	// can get a reproducible value across runs.
	timestampUsecs := uint64(fixedGenesisTimestampUsecs)
	if opts.UseFixedTimestamp {
		timestampUsecs = fixedGenesisTimestampUsecs
	} else if raw, found, err := executed.ResultView.State.Get(ledgerview.StateKey(timestampKey)); err == nil && found {
		if parsed, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
			timestampUsecs = parsed
		}
	}

	version := executed.ResultView.Accumulator.NumLeaves() - 1
	li := storage.LedgerInfoWithSignatures{
		LedgerInfo: storage.LedgerInfo{
			Version:          version,
			ConsensusBlockID: bhash.Zero,
			AccumulatorRoot:  executed.ResultView.Accumulator.RootHash(),
			StateRoot:        executed.ResultView.RootHash(),
			TimestampUsecs:   timestampUsecs,
			NextEpochState:   executed.NextEpochState,
		},
	}
	return li, executed, treeState.NumTransactions, nil
}

// GenerateWaypoint computes the waypoint a genesis transaction would
// produce against db's current state, without committing anything.
func GenerateWaypoint(ctx context.Context, db storage.Adapter, vmExec vm.Executor, genesisTxn vm.Transaction, opts GenesisOpts) (Waypoint, error) {
	li, _, _, err := runGenesis(ctx, db, vmExec, genesisTxn, opts)
	if err != nil {
		return Waypoint{}, err
	}
	return Waypoint{Version: li.LedgerInfo.Version, RootHash: li.LedgerInfo.AccumulatorRoot}, nil
}

// MaybeBootstrap commits genesisTxn if db's current ledger matches
// waypoint exactly. It returns false (not an error) when db is
// expected to catch up via state-sync instead of a genesis apply.
func MaybeBootstrap(ctx context.Context, db storage.Adapter, vmExec vm.Executor, genesisTxn vm.Transaction, waypoint Waypoint, opts GenesisOpts) (bool, error) {
	treeState, err := db.GetLatestTreeState(ctx)
	if err != nil {
		return false, errors.Wrap(err, "reading latest tree state")
	}
	if treeState.NumTransactions != waypoint.Version {
		return false, nil
	}

	li, executed, firstVersion, err := runGenesis(ctx, db, vmExec, genesisTxn, opts)
	if err != nil {
		return false, err
	}
	recomputed := Waypoint{Version: li.LedgerInfo.Version, RootHash: li.LedgerInfo.AccumulatorRoot}
	if recomputed != waypoint {
		return false, &MismatchError{Reason: fmt.Sprintf("recomputed waypoint %s does not match expected %s", recomputed.RootHash, waypoint.RootHash)}
	}

	persisted := make([]storage.PersistedTransaction, len(executed.ToCommit))
	for i, r := range executed.ToCommit {
		persisted[i] = storage.PersistedTransaction{
			Version:  firstVersion + uint64(i),
			Hash:     r.Txn.Hash(),
			Payload:  r.Txn.Payload,
			WriteSet: r.Output.WriteSet,
			Events:   r.Output.Events,
			GasUsed:  r.Output.GasUsed,
			Status:   r.Output.Status,
		}
	}
	if err := db.SaveTransactions(ctx, persisted, firstVersion, &li); err != nil {
		return false, errors.Wrap(err, "committing genesis transaction")
	}
	return true, nil
}
