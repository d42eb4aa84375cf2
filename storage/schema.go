package storage

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	version INTEGER PRIMARY KEY,
	txn_hash BLOB NOT NULL,
	bits BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS state_nodes (
	key_hash BLOB PRIMARY KEY,
	key BLOB NOT NULL,
	bits BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS accumulator_frontier (
	version INTEGER NOT NULL,
	frozen_subtree_idx INTEGER NOT NULL,
	hash BLOB NOT NULL,
	PRIMARY KEY (version, frozen_subtree_idx)
);

CREATE TABLE IF NOT EXISTS ledger_infos (
	version INTEGER PRIMARY KEY,
	epoch INTEGER NOT NULL,
	consensus_block_id BLOB NOT NULL,
	bits BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	name TEXT PRIMARY KEY,
	height INTEGER NOT NULL DEFAULT 0
);
`
