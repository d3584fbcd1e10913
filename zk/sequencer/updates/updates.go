// Package updates implements the UpdatesManager (C3): the in-memory
// accumulator of executed-tx effects for the batch currently being built.
package updates

import (
	"github.com/gateway-fm/cdk-erigon-lib/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/sealer"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// ExecutedTransaction is one successfully-included transaction plus its
// execution artifacts, recorded into the current L2 block.
type ExecutedTransaction struct {
	Tx                  types.Transaction
	Metrics             types.ExecutionMetrics
	CompressedBytecodes []types.CompressedBytecode
}

// L2BlockUpdates accumulates everything executed within the in-progress L2 block.
type L2BlockUpdates struct {
	Number             uint64
	Timestamp          uint64
	ExecutedTransactions []ExecutedTransaction
	L2ToL1Logs         []types.L2ToL1Log
	L2ToL1Messages     []types.L2ToL1Message
}

func (b *L2BlockUpdates) isEmpty() bool { return len(b.ExecutedTransactions) == 0 }

// L1BatchUpdates accumulates batch-scoped identity (number, timestamp, fee,
// protocol version) that does not change as blocks are sealed within it.
type L1BatchUpdates struct {
	Number          uint64
	Timestamp       uint64
	FeeInput        types.FeeInput
	ProtocolVersion types.ProtocolVersionID
}

// UpdatesManager is created when a batch opens and destroyed when the batch
// is handed to the output handler (spec.md 3, Lifecycle).
type UpdatesManager struct {
	L1Batch L1BatchUpdates
	L2Block L2BlockUpdates

	dedup *StorageWritesDeduplicator

	pendingExecutionMetrics  types.ExecutionMetrics
	pendingTxsEncodingSize   int
	pendingL1TransactionsLen int
}

func New(batch L1BatchUpdates, firstBlock L2BlockUpdates) *UpdatesManager {
	return &UpdatesManager{
		L1Batch: batch,
		L2Block: firstBlock,
		dedup:   NewStorageWritesDeduplicator(),
	}
}

// PushL2Block seals the in-progress L2 block (if any output handler needs it,
// the caller does that before calling this) and opens a new, empty one.
// Invariant: immediately after this call L2Block.isEmpty() is true.
func (u *UpdatesManager) PushL2Block(params types.L2BlockParams, number uint64) {
	u.L2Block = L2BlockUpdates{Number: number, Timestamp: params.Timestamp}
}

// ExtendFromExecutedTransaction folds one successful execution into both the
// tx-level pending tallies and the current L2 block. Monotonically
// increases both, per spec.md 3 invariants.
func (u *UpdatesManager) ExtendFromExecutedTransaction(tx types.Transaction, result executor.TxExecutionResult) {
	et := ExecutedTransaction{
		Tx:                  tx,
		Metrics:             result.Metrics,
		CompressedBytecodes: result.CompressedBytecodes,
	}
	u.L2Block.ExecutedTransactions = append(u.L2Block.ExecutedTransactions, et)

	u.pendingExecutionMetrics = u.pendingExecutionMetrics.Add(result.Metrics)
	u.pendingTxsEncodingSize += tx.EncodingLen
	if tx.IsL1 {
		u.pendingL1TransactionsLen++
	}

	u.dedup.Apply(result.StorageLogs)
}

// ApplyAndRollback prices logs against the real dedup accumulator without
// mutating it — used while deciding whether to include a candidate tx.
func (u *UpdatesManager) ApplyAndRollback(logs []types.StorageLog) types.WritesMetrics {
	return u.dedup.ApplyAndRollback(logs)
}

// PendingExecutionMetrics, PendingTxsEncodingSize, PendingL1TransactionsLen
// are the batch-scoped tallies seal criteria add a candidate tx's own data to.
func (u *UpdatesManager) PendingExecutionMetrics() types.ExecutionMetrics { return u.pendingExecutionMetrics }
func (u *UpdatesManager) PendingTxsEncodingSize() int                    { return u.pendingTxsEncodingSize }
func (u *UpdatesManager) PendingL1TransactionsLen() int                  { return u.pendingL1TransactionsLen }

// TxCount/L1TxCount are the counts should_seal_l1_batch is called with (the
// +1/+is_l1 in spec.md 4.1.5 accounts for the candidate tx not yet recorded).
func (u *UpdatesManager) TxCount() int {
	return len(u.L2Block.ExecutedTransactions)
}

func (u *UpdatesManager) L1TxCount() int {
	n := 0
	for _, et := range u.L2Block.ExecutedTransactions {
		if et.Tx.IsL1 {
			n++
		}
	}
	return n
}

// SealDataForCandidate builds the tx_data / block_data pair spec.md 4.1.5
// describes, given a candidate transaction's own execution result.
func (u *UpdatesManager) SealDataForCandidate(tx types.Transaction, result executor.TxExecutionResult) (block, candidate sealer.SealData) {
	candidateWrites := u.ApplyAndRollback(result.StorageLogs)
	candidate = sealer.SealData{
		ExecutionMetrics: result.Metrics,
		CumulativeSize:   tx.EncodingLen,
		WritesMetrics:    candidateWrites,
		GasRemaining:     result.GasRemaining,
	}
	block = sealer.SealData{
		ExecutionMetrics: u.pendingExecutionMetrics,
		CumulativeSize:   u.pendingTxsEncodingSize,
	}
	return block, candidate
}

// HasExecutedTxs reports whether the current L2 block has any included tx —
// used by the keeper to decide whether sealing the current block is a no-op.
func (u *UpdatesManager) HasExecutedTxs() bool { return !u.L2Block.isEmpty() }

// StateHash is a debug hook exposing the dedup set's observed keys, in no
// particular order: two UpdatesManagers built from identical inputs observe
// the identical set of storage keys.
func (u *UpdatesManager) StateHash() []common.Hash {
	return u.dedup.seen.ToSlice()
}
