package bootstrap

import (
	"context"
	"os"
	"testing"

	"ledgercore/blockexec/storage"
	"ledgercore/blockexec/vm"
)

func withTestDB(t *testing.T, fn func(context.Context, *storage.SQLiteAdapter)) {
	t.Helper()
	ctx := context.Background()

	f, err := os.CreateTemp("", "blockexec-bootstrap")
	if err != nil {
		t.Fatal(err)
	}
	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := storage.Open(ctx, tmpfile)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	fn(ctx, db)
}

var genesisTxn = vm.Transaction{Payload: []byte("reconfigure=1")}

// Scenario 8 (P8): generate_waypoint then maybe_bootstrap round-trips.
func TestWaypointRoundtripOnEmptyDB(t *testing.T) {
	withTestDB(t, func(ctx context.Context, db *storage.SQLiteAdapter) {
		wp, err := GenerateWaypoint(ctx, db, vm.KeyValueVM{}, genesisTxn, GenesisOpts{UseFixedTimestamp: true})
		if err != nil {
			t.Fatalf("GenerateWaypoint: %s", err)
		}
		if wp.Version != 0 {
			t.Fatalf("waypoint version = %d, want 0", wp.Version)
		}

		ok, err := MaybeBootstrap(ctx, db, vm.KeyValueVM{}, genesisTxn, wp, GenesisOpts{UseFixedTimestamp: true})
		if err != nil {
			t.Fatalf("MaybeBootstrap: %s", err)
		}
		if !ok {
			t.Fatalf("MaybeBootstrap returned false for a matching waypoint on an empty db")
		}

		li, found, err := db.GetLatestLedgerInfo(ctx)
		if err != nil {
			t.Fatalf("GetLatestLedgerInfo: %s", err)
		}
		if !found || li.LedgerInfo.Version != 0 {
			t.Fatalf("GetLatestLedgerInfo = (%+v, %v), want version 0", li, found)
		}
		treeState, err := db.GetLatestTreeState(ctx)
		if err != nil {
			t.Fatalf("GetLatestTreeState: %s", err)
		}
		if treeState.NumTransactions != 1 {
			t.Fatalf("NumTransactions = %d, want 1", treeState.NumTransactions)
		}
	})
}

func TestMaybeBootstrapWrongVersionIsNotAnError(t *testing.T) {
	withTestDB(t, func(ctx context.Context, db *storage.SQLiteAdapter) {
		wp := Waypoint{Version: 5} // db is at version-count 0, not 5
		ok, err := MaybeBootstrap(ctx, db, vm.KeyValueVM{}, genesisTxn, wp, GenesisOpts{UseFixedTimestamp: true})
		if err != nil {
			t.Fatalf("MaybeBootstrap: %s", err)
		}
		if ok {
			t.Fatalf("MaybeBootstrap returned true for a db not at the waypoint's version")
		}
	})
}

func TestMaybeBootstrapMismatchedRootFails(t *testing.T) {
	withTestDB(t, func(ctx context.Context, db *storage.SQLiteAdapter) {
		wp := Waypoint{Version: 0} // correct version, but a bogus root hash
		_, err := MaybeBootstrap(ctx, db, vm.KeyValueVM{}, genesisTxn, wp, GenesisOpts{UseFixedTimestamp: true})
		if err == nil {
			t.Fatalf("expected a MismatchError for a waypoint with the wrong root hash")
		}
		if _, ok := err.(*MismatchError); !ok {
			t.Fatalf("error type = %T, want *MismatchError", err)
		}
	})
}

func TestGenesisTransactionMustReconfigure(t *testing.T) {
	withTestDB(t, func(ctx context.Context, db *storage.SQLiteAdapter) {
		plainTxn := vm.Transaction{Payload: []byte("a=1")}
		_, err := GenerateWaypoint(ctx, db, vm.KeyValueVM{}, plainTxn, GenesisOpts{UseFixedTimestamp: true})
		if err == nil {
			t.Fatalf("expected an error when the genesis transaction does not reconfigure")
		}
		if _, ok := err.(*MismatchError); !ok {
			t.Fatalf("error type = %T, want *MismatchError", err)
		}
	})
}

func TestWaypointTextRoundtrip(t *testing.T) {
	withTestDB(t, func(ctx context.Context, db *storage.SQLiteAdapter) {
		wp, err := GenerateWaypoint(ctx, db, vm.KeyValueVM{}, genesisTxn, GenesisOpts{UseFixedTimestamp: true})
		if err != nil {
			t.Fatalf("GenerateWaypoint: %s", err)
		}
		text, err := wp.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %s", err)
		}
		var got Waypoint
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText: %s", err)
		}
		if got != wp {
			t.Fatalf("waypoint text roundtrip mismatch: got %+v, want %+v", got, wp)
		}
	})
}
