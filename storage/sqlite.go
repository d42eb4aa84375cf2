package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bobg/sqlutil"
	"github.com/chain/txvm/errors"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/ledgerview"
)

// SQLiteAdapter implements Adapter over a database/sql handle backed
// by the mattn/go-sqlite3 driver, exactly the teacher's storage
// pairing in store.go.
type SQLiteAdapter struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite-backed Adapter at path,
// applying the schema idempotently the same way the teacher's
// store.go does with its own CREATE TABLE IF NOT EXISTS block.
func Open(ctx context.Context, path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite db")
	}
	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating db schema")
	}
	return &SQLiteAdapter{db: db}, nil
}

// Close releases the underlying database handle.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

// DB returns the underlying *sql.DB, for callers (such as notify.Subscribe)
// that need direct access to run their own statements against the same
// handle rather than going through the Adapter interface.
func (a *SQLiteAdapter) DB() *sql.DB {
	return a.db
}

// GetLatestTreeState implements Adapter.
func (a *SQLiteAdapter) GetLatestTreeState(ctx context.Context) (TreeState, error) {
	var numTxns uint64
	row := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`)
	if err := row.Scan(&numTxns); err != nil {
		return TreeState{}, errors.Wrap(err, "counting persisted transactions")
	}

	stateRoot, err := a.stateRootLocked(ctx)
	if err != nil {
		return TreeState{}, err
	}

	var subtrees []bhash.Hash
	err = sqlutil.ForQueryRows(ctx, a.db, `SELECT hash FROM accumulator_frontier WHERE version = ? ORDER BY frozen_subtree_idx`, numTxns,
		func(hash []byte) error {
			subtrees = append(subtrees, bhash.FromBytes(hash))
			return nil
		})
	if err != nil {
		return TreeState{}, errors.Wrap(err, "reading accumulator frontier")
	}

	return TreeState{
		NumTransactions:           numTxns,
		StateRoot:                 stateRoot,
		AccumulatorFrozenSubtrees: subtrees,
	}, nil
}

// stateRootLocked recomputes the current state tree root by folding
// every persisted key's commitment, matching the same hash(key||value)
// scheme ledgerview.StateTree uses, so a freshly opened adapter
// reports a root consistent with what an in-memory StateTree would
// have produced had it never been recreated from scratch. It reads
// the plaintext key column, not key_hash: StateTree.Apply embeds the
// literal key bytes in each commitment, so folding in the hash instead
// of the key it was derived from would commit to a different (and
// non-matching) root than the live execution path produces.
func (a *SQLiteAdapter) stateRootLocked(ctx context.Context) (bhash.Hash, error) {
	tree := ledgerview.EmptyStateTree()
	writes := map[string][]byte{}
	err := sqlutil.ForQueryRows(ctx, a.db, `SELECT key, bits FROM state_nodes`, func(key, bits []byte) error {
		writes[string(key)] = bits
		return nil
	})
	if err != nil {
		return bhash.Hash{}, errors.Wrap(err, "reading state nodes")
	}
	if len(writes) == 0 {
		return tree.RootHash(), nil
	}
	tree, err = tree.Apply(writes)
	if err != nil {
		return bhash.Hash{}, errors.Wrap(err, "recomputing state root")
	}
	return tree.RootHash(), nil
}

// StateViewAtVersion implements Adapter. Only the latest version
// (version == nil, or *version equal to the synced version) is
// supported: the versioned sparse merkle tree
// storage.md treats as an external collaborator is not reimplemented
// here, only its "latest" projection.
func (a *SQLiteAdapter) StateViewAtVersion(ctx context.Context, version *uint64) (*ledgerview.View, error) {
	if version != nil {
		synced, err := a.FetchSyncedVersion(ctx)
		if err != nil {
			return nil, err
		}
		if *version != synced {
			return nil, errors.New("historical state views are not supported by this storage engine; only the latest version is available")
		}
	}
	root, err := a.stateRootLocked(ctx)
	if err != nil {
		return nil, err
	}
	return ledgerview.NewBaseView(a, ledgerview.FromPersistedRoot(root)), nil
}

// GetStateValue implements ledgerview.PersistedReader.
func (a *SQLiteAdapter) GetStateValue(key ledgerview.StateKey) ([]byte, bool, error) {
	keyHash := bhash.Sum256([]byte(key))
	row := a.db.QueryRowContext(context.Background(), `SELECT bits FROM state_nodes WHERE key_hash = ?`, keyHash.Bytes())
	var bits []byte
	err := row.Scan(&bits)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading state value for key %q", key)
	}
	return bits, true, nil
}

// FetchSyncedVersion implements Adapter.
func (a *SQLiteAdapter) FetchSyncedVersion(ctx context.Context) (uint64, error) {
	var n uint64
	row := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`)
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting persisted transactions")
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}

// SaveTransactions implements Adapter: the atomic commit fence. It
// fails the precondition check before opening a transaction so a
// rejected call never touches the database, mirroring the version
// check in commit_blocks.
func (a *SQLiteAdapter) SaveTransactions(ctx context.Context, txns []PersistedTransaction, firstVersion uint64, ledgerInfo *LedgerInfoWithSignatures) error {
	persistedLen, err := a.countTransactions(ctx)
	if err != nil {
		return err
	}
	if firstVersion != persistedLen {
		return errors.Wrapf(ErrVersionMismatch, "first_version=%d persisted_len=%d", firstVersion, persistedLen)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning save_transactions tx")
	}
	defer tx.Rollback()

	acc := ledgerview.NewAccumulator()
	if firstVersion > 0 {
		prevSubtrees, err := a.frozenSubtreesLocked(ctx, tx, firstVersion)
		if err != nil {
			return err
		}
		acc = ledgerview.RestoreAccumulator(firstVersion, prevSubtrees)
	}

	for i, p := range txns {
		p.Version = firstVersion + uint64(i)
		bits, err := marshalTxnRecord(p)
		if err != nil {
			return errors.Wrapf(err, "marshaling transaction %d", p.Version)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO transactions (version, txn_hash, bits) VALUES (?, ?, ?)`,
			p.Version, p.Hash.Bytes(), bits)
		if err != nil {
			return errors.Wrapf(err, "writing transaction %d", p.Version)
		}
		for key, value := range p.WriteSet {
			keyHash := bhash.Sum256([]byte(key))
			_, err = tx.ExecContext(ctx, `INSERT INTO state_nodes (key_hash, key, bits) VALUES (?, ?, ?)
				ON CONFLICT(key_hash) DO UPDATE SET key = excluded.key, bits = excluded.bits`,
				keyHash.Bytes(), []byte(key), value)
			if err != nil {
				return errors.Wrapf(err, "writing state node for key %q", key)
			}
		}
		acc = acc.Append(p.Hash)
	}

	subtrees := acc.FrozenSubtrees()
	_, err = tx.ExecContext(ctx, `DELETE FROM accumulator_frontier`)
	if err != nil {
		return errors.Wrap(err, "clearing accumulator frontier")
	}
	for idx, sub := range subtrees {
		_, err = tx.ExecContext(ctx, `INSERT INTO accumulator_frontier (version, frozen_subtree_idx, hash) VALUES (?, ?, ?)`,
			acc.NumLeaves(), idx, sub.Bytes())
		if err != nil {
			return errors.Wrap(err, "writing accumulator frontier")
		}
	}

	if ledgerInfo != nil {
		bits, err := marshalLedgerInfoRecord(*ledgerInfo)
		if err != nil {
			return errors.Wrap(err, "marshaling ledger info")
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO ledger_infos (version, epoch, consensus_block_id, bits) VALUES (?, ?, ?, ?)`,
			ledgerInfo.LedgerInfo.Version, epochOf(ledgerInfo.LedgerInfo), ledgerInfo.LedgerInfo.ConsensusBlockID.Bytes(), bits)
		if err != nil {
			return errors.Wrap(err, "writing ledger info")
		}
	}

	return errors.Wrap(tx.Commit(), "committing save_transactions tx")
}

func epochOf(li LedgerInfo) uint64 {
	if li.NextEpochState != nil {
		return li.NextEpochState.Epoch
	}
	return 0
}

func (a *SQLiteAdapter) countTransactions(ctx context.Context) (uint64, error) {
	var n uint64
	row := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`)
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting persisted transactions")
	}
	return n, nil
}

func (a *SQLiteAdapter) frozenSubtreesLocked(ctx context.Context, tx *sql.Tx, version uint64) ([]bhash.Hash, error) {
	var subtrees []bhash.Hash
	err := sqlutil.ForQueryRows(ctx, tx, `SELECT hash FROM accumulator_frontier WHERE version = ? ORDER BY frozen_subtree_idx`, version,
		func(hash []byte) error {
			subtrees = append(subtrees, bhash.FromBytes(hash))
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "reading accumulator frontier")
	}
	return subtrees, nil
}

// GetLatestLedgerInfo implements Adapter.
func (a *SQLiteAdapter) GetLatestLedgerInfo(ctx context.Context) (*LedgerInfoWithSignatures, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT bits FROM ledger_infos ORDER BY version DESC LIMIT 1`)
	var bits []byte
	err := row.Scan(&bits)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading latest ledger info")
	}
	li, err := unmarshalLedgerInfoRecord(bits)
	if err != nil {
		return nil, false, errors.Wrap(err, "unmarshaling ledger info")
	}
	return &li, true, nil
}

// ErrVersionMismatch is returned (wrapped) by SaveTransactions when
// first_version doesn't match the persisted length.
var ErrVersionMismatch = errors.New("first_version does not match persisted length")
