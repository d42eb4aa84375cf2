// Command blockexecd wires the Storage Adapter, genesis bootstrap, and
// the Block Executor into a running process with a small HTTP status
// surface. It has no consensus or networking stack of its own — those
// are the external collaborators the block execution core expects.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"ledgercore/blockexec/bootstrap"
	"ledgercore/blockexec/executor"
	"ledgercore/blockexec/notify"
	"ledgercore/blockexec/storage"
	"ledgercore/blockexec/vm"
)

// httpError replies to req with the given status and message, logging
// it via logrus the same way every other failure path in this command
// does, rather than stdlib log.
func httpError(w http.ResponseWriter, code int, msgfmt string, args ...interface{}) {
	msg := fmt.Sprintf(msgfmt, args...)
	http.Error(w, msg, code)
	logrus.WithField("status", code).Warn(msg)
}

func main() {
	var (
		addr       = flag.String("addr", ":2423", "listen address")
		dbFile     = flag.String("db", "blockexecd.db", "path to sqlite database file")
		waypointIn = flag.String("waypoint", "", "expected genesis waypoint, ASCII \"version:hexroot\" form (required)")
	)
	flag.Parse()

	if *waypointIn == "" {
		logrus.Fatal("-waypoint is required")
	}
	var waypoint bootstrap.Waypoint
	if err := waypoint.UnmarshalText([]byte(*waypointIn)); err != nil {
		logrus.WithError(err).Fatal("parsing -waypoint")
	}

	ctx := context.Background()

	db, err := storage.Open(ctx, *dbFile)
	if err != nil {
		logrus.WithError(err).Fatal("opening storage")
	}

	vmExec := vm.KeyValueVM{}
	genesisTxn := vm.Transaction{Payload: []byte("reconfigure=1")}

	bootstrapped, err := bootstrap.MaybeBootstrap(ctx, db, vmExec, genesisTxn, waypoint, bootstrap.GenesisOpts{})
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap failed")
	}
	if bootstrapped {
		logrus.Info("genesis committed")
	}

	be, err := executor.New(ctx, db, vmExec)
	if err != nil {
		logrus.WithError(err).Fatal("constructing block executor")
	}

	broadcaster := notify.NewBroadcaster()
	defer broadcaster.Close()
	be.OnCommit = broadcaster.Publish

	errc := notify.Subscribe(ctx, db.DB(), db, broadcaster, "blockexecd-log", func(_ context.Context, li *storage.LedgerInfoWithSignatures) error {
		logrus.WithFields(logrus.Fields{
			"version":      li.LedgerInfo.Version,
			"state_root":   li.LedgerInfo.StateRoot,
			"accumulator":  li.LedgerInfo.AccumulatorRoot,
			"has_reconfig": li.LedgerInfo.NextEpochState != nil,
		}).Info("ledger info committed")
		return nil
	})
	go func() {
		if err := <-errc; err != nil {
			logrus.WithError(err).Warn("ledger info subscription ended")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "committed_block_id: %s\n", be.CommittedBlockID())
	})
	mux.HandleFunc("/block", func(w http.ResponseWriter, req *http.Request) {
		heightStr := req.FormValue("height")
		if heightStr == "" {
			httpError(w, http.StatusBadRequest, "height parameter is required")
			return
		}
		height, err := strconv.ParseUint(heightStr, 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "parsing height: %s", err)
			return
		}
		li, found, err := db.GetLatestLedgerInfo(req.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reading latest ledger info: %s", err)
			return
		}
		if !found || li.LedgerInfo.Version < height {
			httpError(w, http.StatusNotFound, "no ledger info committed at version %d yet", height)
			return
		}
		fmt.Fprintf(w, "version=%d consensus_block_id=%s accumulator_root=%s\n",
			li.LedgerInfo.Version, li.LedgerInfo.ConsensusBlockID, li.LedgerInfo.AccumulatorRoot)
	})

	logrus.WithField("addr", *addr).Info("listening")
	logrus.Fatal(http.ListenAndServe(*addr, mux))
}
