package vm

import (
	"context"
	"strconv"
	"strings"

	"ledgercore/blockexec/ledgerview"
)

// KeyValueVM is a deterministic, in-memory reference Executor used by
// tests, cmd/blockbench and cmd/blockexecd. It has no real instruction set: a
// transaction payload is either "key=value", which writes value under
// key, or "reconfigure=N", which writes nothing but ends the epoch and
// starts epoch N. Anything else is discarded. This is enough to drive
// every reconfiguration-suffix and write-set scenario the core cares
// about without depending on a real VM.
type KeyValueVM struct{}

const reconfigureKey = "reconfigure"

// Execute implements Executor.
func (KeyValueVM) Execute(ctx context.Context, txns []Transaction, view ledgerview.StateView) ([]TransactionOutput, error) {
	outs := make([]TransactionOutput, len(txns))
	for i, txn := range txns {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		outs[i] = executeOne(txn)
	}
	return outs, nil
}

func executeOne(txn Transaction) TransactionOutput {
	parts := strings.SplitN(string(txn.Payload), "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return TransactionOutput{Status: StatusDiscarded}
	}
	key, value := parts[0], parts[1]
	if key == reconfigureKey {
		epoch, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return TransactionOutput{Status: StatusDiscarded}
		}
		return TransactionOutput{
			Status:   StatusExecuted,
			Reconfig: &EpochState{Epoch: epoch},
		}
	}
	return TransactionOutput{
		WriteSet: map[ledgerview.StateKey][]byte{
			ledgerview.StateKey(key): []byte(value),
		},
		Status: StatusExecuted,
	}
}
