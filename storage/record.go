package storage

import (
	"github.com/golang/protobuf/proto"

	"ledgercore/blockexec/bhash"
	"ledgercore/blockexec/ledgerview"
	"ledgercore/blockexec/vm"
)

// rawTxnRecord is the wire encoding of a PersistedTransaction, marshaled
// the same way the teacher marshals its own txvm transactions
// (record.go, submit.go): github.com/golang/protobuf/proto driven by
// protobuf struct tags, with no protoc-generated code in this repo.
type rawTxnRecord struct {
	Version  uint64        `protobuf:"varint,1,opt,name=version" json:"version,omitempty"`
	Hash     []byte        `protobuf:"bytes,2,opt,name=hash" json:"hash,omitempty"`
	Payload  []byte        `protobuf:"bytes,3,opt,name=payload" json:"payload,omitempty"`
	WriteSet []*rawWriteOp `protobuf:"bytes,4,rep,name=write_set" json:"write_set,omitempty"`
	Events   []*rawEvent   `protobuf:"bytes,5,rep,name=events" json:"events,omitempty"`
	GasUsed  uint64        `protobuf:"varint,6,opt,name=gas_used" json:"gas_used,omitempty"`
	Status   int32         `protobuf:"varint,7,opt,name=status" json:"status,omitempty"`
}

func (m *rawTxnRecord) Reset()         { *m = rawTxnRecord{} }
func (m *rawTxnRecord) String() string { return proto.CompactTextString(m) }
func (m *rawTxnRecord) ProtoMessage()  {}

type rawWriteOp struct {
	Key   []byte `protobuf:"bytes,1,opt,name=key" json:"key,omitempty"`
	Value []byte `protobuf:"bytes,2,opt,name=value" json:"value,omitempty"`
}

func (m *rawWriteOp) Reset()         { *m = rawWriteOp{} }
func (m *rawWriteOp) String() string { return proto.CompactTextString(m) }
func (m *rawWriteOp) ProtoMessage()  {}

type rawEvent struct {
	Key  string `protobuf:"bytes,1,opt,name=key" json:"key,omitempty"`
	Data []byte `protobuf:"bytes,2,opt,name=data" json:"data,omitempty"`
}

func (m *rawEvent) Reset()         { *m = rawEvent{} }
func (m *rawEvent) String() string { return proto.CompactTextString(m) }
func (m *rawEvent) ProtoMessage()  {}

func marshalTxnRecord(p PersistedTransaction) ([]byte, error) {
	raw := &rawTxnRecord{
		Version: p.Version,
		Hash:    p.Hash.Bytes(),
		Payload: p.Payload,
		GasUsed: p.GasUsed,
		Status:  int32(p.Status),
	}
	for k, v := range p.WriteSet {
		raw.WriteSet = append(raw.WriteSet, &rawWriteOp{Key: []byte(k), Value: v})
	}
	for _, e := range p.Events {
		raw.Events = append(raw.Events, &rawEvent{Key: e.Key, Data: e.Data})
	}
	return proto.Marshal(raw)
}

func unmarshalTxnRecord(bits []byte) (PersistedTransaction, error) {
	var raw rawTxnRecord
	if err := proto.Unmarshal(bits, &raw); err != nil {
		return PersistedTransaction{}, err
	}
	p := PersistedTransaction{
		Version:  raw.Version,
		Hash:     bhash.FromBytes(raw.Hash),
		Payload:  raw.Payload,
		GasUsed:  raw.GasUsed,
		Status:   vm.Status(raw.Status),
		WriteSet: make(map[ledgerview.StateKey][]byte, len(raw.WriteSet)),
	}
	for _, w := range raw.WriteSet {
		p.WriteSet[ledgerview.StateKey(w.Key)] = w.Value
	}
	for _, e := range raw.Events {
		p.Events = append(p.Events, vm.Event{Key: e.Key, Data: e.Data})
	}
	return p, nil
}

// rawLedgerInfoRecord is the wire encoding of a LedgerInfoWithSignatures.
type rawLedgerInfoRecord struct {
	Version             uint64   `protobuf:"varint,1,opt,name=version" json:"version,omitempty"`
	ConsensusBlockID    []byte   `protobuf:"bytes,2,opt,name=consensus_block_id" json:"consensus_block_id,omitempty"`
	AccumulatorRoot     []byte   `protobuf:"bytes,3,opt,name=accumulator_root" json:"accumulator_root,omitempty"`
	StateRoot           []byte   `protobuf:"bytes,4,opt,name=state_root" json:"state_root,omitempty"`
	TimestampUsecs      uint64   `protobuf:"varint,5,opt,name=timestamp_usecs" json:"timestamp_usecs,omitempty"`
	HasNextEpoch        bool     `protobuf:"varint,6,opt,name=has_next_epoch" json:"has_next_epoch,omitempty"`
	NextEpoch           uint64   `protobuf:"varint,7,opt,name=next_epoch" json:"next_epoch,omitempty"`
	NextEpochValidators []byte   `protobuf:"bytes,8,opt,name=next_epoch_validators" json:"next_epoch_validators,omitempty"`
	Signatures          [][]byte `protobuf:"bytes,9,rep,name=signatures" json:"signatures,omitempty"`
}

func (m *rawLedgerInfoRecord) Reset()         { *m = rawLedgerInfoRecord{} }
func (m *rawLedgerInfoRecord) String() string { return proto.CompactTextString(m) }
func (m *rawLedgerInfoRecord) ProtoMessage()  {}

func marshalLedgerInfoRecord(li LedgerInfoWithSignatures) ([]byte, error) {
	raw := &rawLedgerInfoRecord{
		Version:          li.LedgerInfo.Version,
		ConsensusBlockID: li.LedgerInfo.ConsensusBlockID.Bytes(),
		AccumulatorRoot:  li.LedgerInfo.AccumulatorRoot.Bytes(),
		StateRoot:        li.LedgerInfo.StateRoot.Bytes(),
		TimestampUsecs:   li.LedgerInfo.TimestampUsecs,
		Signatures:       li.Signatures,
	}
	if es := li.LedgerInfo.NextEpochState; es != nil {
		raw.HasNextEpoch = true
		raw.NextEpoch = es.Epoch
		raw.NextEpochValidators = es.Validators
	}
	return proto.Marshal(raw)
}

func unmarshalLedgerInfoRecord(bits []byte) (LedgerInfoWithSignatures, error) {
	var raw rawLedgerInfoRecord
	if err := proto.Unmarshal(bits, &raw); err != nil {
		return LedgerInfoWithSignatures{}, err
	}
	li := LedgerInfoWithSignatures{
		LedgerInfo: LedgerInfo{
			Version:          raw.Version,
			ConsensusBlockID: bhash.FromBytes(raw.ConsensusBlockID),
			AccumulatorRoot:  bhash.FromBytes(raw.AccumulatorRoot),
			StateRoot:        bhash.FromBytes(raw.StateRoot),
			TimestampUsecs:   raw.TimestampUsecs,
		},
		Signatures: raw.Signatures,
	}
	if raw.HasNextEpoch {
		li.LedgerInfo.NextEpochState = &vm.EpochState{Epoch: raw.NextEpoch, Validators: raw.NextEpochValidators}
	}
	return li, nil
}
