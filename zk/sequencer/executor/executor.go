// Package executor defines the BatchExecutor contract (C1): the boundary
// between the sequencer core and the VM. The VM itself is out of scope;
// this file specifies the interface and its result types, and
// rpcexecutor.go implements them over a JSON-RPC execution endpoint.
package executor

import (
	"context"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// BatchExecutor executes one transaction at a time against VM storage for a
// single in-flight batch. Implementations are not required to be safe for
// concurrent use: the StateKeeper owns one executor per batch exclusively.
type BatchExecutor interface {
	// ExecuteTx runs tx against the current block and returns its classified result.
	ExecuteTx(ctx context.Context, tx *types.Transaction) (TxExecutionResult, error)
	// RollbackLastTx undoes the most recently executed transaction. Only
	// ever called immediately after ExecuteTx for the same tx.
	RollbackLastTx(ctx context.Context) error
	// StartNextL2Block opens a new L2 block within the current batch.
	StartNextL2Block(ctx context.Context, env types.L2BlockEnv) error
	// FinishBatch seals VM-side batch state and returns the finished artifact.
	FinishBatch(ctx context.Context) (types.FinishedBatch, error)
}

// Factory constructs a BatchExecutor bound to storage as of l1BatchNumber-1.
// Kept as its own small interface (rather than a constructor function type)
// because concrete factories carry their own storage-handle lifecycle.
type Factory interface {
	Init(ctx context.Context, l1BatchNumber uint64, env types.L1BatchEnv, sys types.SystemEnv, pubdata types.PubdataParams) (BatchExecutor, error)
}

// ResultKind discriminates the TxExecutionResult sum type.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultBootloaderOutOfGas
	ResultRejectedByVM
)

// TxExecutionResult is the sum type zksync-era calls
// Success | BootloaderOutOfGasForTx | RejectedByVm{reason}. Exactly one of
// the payload fields below is meaningful, selected by Kind.
type TxExecutionResult struct {
	Kind ResultKind

	// valid when Kind == ResultSuccess
	Metrics             types.ExecutionMetrics
	GasRemaining        uint64
	StorageLogs         []types.StorageLog
	CompressedBytecodes []types.CompressedBytecode
	IsFailed            bool // VM-level revert of the tx itself (distinct from rejection)

	// valid when Kind == ResultRejectedByVM
	RejectionReason        string
	NotEnoughGasProvided   bool
}

func (r TxExecutionResult) IsSuccess() bool { return r.Kind == ResultSuccess }
