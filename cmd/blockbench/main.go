// Command blockbench drives the Block Executor with synthetic
// transactions at a fixed block size and reports throughput. It
// exercises the same bounded-queue discipline consensus would: a
// single producer feeding a depth-3 channel, and a single consumer
// running execute_block/commit_blocks in strict sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/bootstrap"
	"ledgercore/blockexec/executor"
	"ledgercore/blockexec/storage"
	"ledgercore/blockexec/vm"
)

// queueDepth is the bench harness's bounded channel depth between the
// synthetic transaction generator and the executor goroutine.
const queueDepth = 3

type blockJob struct {
	id     bhash.Hash
	parent bhash.Hash
	txns   []vm.Transaction
}

func main() {
	var (
		dbFile    = flag.String("db", "", "path to sqlite database file (default: temp file)")
		blocks    = flag.Int("blocks", 1000, "number of blocks to run")
		blockSize = flag.Int("block-size", 500, "transactions per block")
	)
	flag.Parse()

	ctx := context.Background()

	path := *dbFile
	if path == "" {
		f, err := os.CreateTemp("", "blockbench-*.db")
		if err != nil {
			logrus.WithError(err).Fatal("creating temp db file")
		}
		path = f.Name()
		f.Close()
		defer os.Remove(path)
	}

	db, err := storage.Open(ctx, path)
	if err != nil {
		logrus.WithError(err).Fatal("opening storage")
	}
	defer db.Close()

	vmExec := vm.KeyValueVM{}
	genesisTxn := vm.Transaction{Payload: []byte("reconfigure=1")}

	waypoint, err := bootstrap.GenerateWaypoint(ctx, db, vmExec, genesisTxn, bootstrap.GenesisOpts{UseFixedTimestamp: true})
	if err != nil {
		logrus.WithError(err).Fatal("computing genesis waypoint")
	}
	if _, err := bootstrap.MaybeBootstrap(ctx, db, vmExec, genesisTxn, waypoint, bootstrap.GenesisOpts{UseFixedTimestamp: true}); err != nil {
		logrus.WithError(err).Fatal("running genesis")
	}

	be, err := executor.New(ctx, db, vmExec)
	if err != nil {
		logrus.WithError(err).Fatal("constructing block executor")
	}

	jobs := make(chan blockJob, queueDepth)

	go generateBlocks(jobs, *blocks, *blockSize, be.CommittedBlockID())

	start := time.Now()
	var totalTxns int
	for job := range jobs {
		result, err := be.ExecuteBlock(ctx, job.id, job.txns, job.parent)
		if err != nil {
			logrus.WithError(err).Fatal("execute_block failed")
		}
		li := storage.LedgerInfoWithSignatures{
			LedgerInfo: storage.LedgerInfo{
				Version:          result.FirstVersion + result.NumTransactions - 1,
				ConsensusBlockID: job.id,
				AccumulatorRoot:  result.AccumulatorRoot,
				StateRoot:        result.RootHash,
				TimestampUsecs:   uint64(time.Now().UnixMicro()),
				NextEpochState:   result.NextEpochState,
			},
		}
		if err := be.CommitBlocks(ctx, []bhash.Hash{job.id}, li); err != nil {
			logrus.WithError(err).Fatal("commit_blocks failed")
		}
		totalTxns += len(job.txns)
	}
	elapsed := time.Since(start)

	fmt.Printf("committed %d blocks / %d transactions in %s (%.1f txns/sec)\n",
		*blocks, totalTxns, elapsed, float64(totalTxns)/elapsed.Seconds())
}

// generateBlocks is the synthetic transaction generator: it builds a
// linear chain of numBlocks blocks, each with blockSize key=value
// writes, and feeds them into jobs in commit order.
func generateBlocks(jobs chan<- blockJob, numBlocks, blockSize int, rootID bhash.Hash) {
	defer close(jobs)
	parent := rootID
	for b := 0; b < numBlocks; b++ {
		txns := make([]vm.Transaction, blockSize)
		for t := 0; t < blockSize; t++ {
			payload := fmt.Sprintf("key_%d_%d=value_%d_%d", b, t, b, t)
			txns[t] = vm.Transaction{Payload: []byte(payload)}
		}
		blockID := bhash.Sum256([]byte(fmt.Sprintf("block_%d", b)))
		jobs <- blockJob{id: blockID, parent: parent, txns: txns}
		parent = blockID
	}
}
