package executor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// RPCFactory is a Factory backed by a JSON-RPC VM service. It gives the
// StateKeeper a construction path without embedding a zkEVM execution
// engine in this module: the VM lives behind the same kind of narrow
// client seam the EthTxAggregator side uses for its L1 node
// (ethsender.L1Client / l1ClientAdapter in cmd), just pointed at an
// execution-side RPC endpoint instead of an L1 one.
type RPCFactory struct {
	client *rpc.Client
}

func NewRPCFactory(client *rpc.Client) *RPCFactory {
	return &RPCFactory{client: client}
}

// Init opens a new batch on the remote executor and returns a handle bound
// to the session id it assigns.
func (f *RPCFactory) Init(ctx context.Context, l1BatchNumber uint64, env types.L1BatchEnv, sys types.SystemEnv, pubdata types.PubdataParams) (BatchExecutor, error) {
	var sessionID string
	if err := f.client.CallContext(ctx, &sessionID, "executor_initBatch", l1BatchNumber, env, sys, pubdata); err != nil {
		return nil, fmt.Errorf("executor: initializing batch %d: %w", l1BatchNumber, err)
	}
	return &rpcExecutor{client: f.client, sessionID: sessionID}, nil
}

// rpcExecutor is the BatchExecutor handle for one in-progress batch on the
// remote VM; sessionID scopes every call to that batch's own state.
type rpcExecutor struct {
	client    *rpc.Client
	sessionID string
}

func (e *rpcExecutor) ExecuteTx(ctx context.Context, tx *types.Transaction) (TxExecutionResult, error) {
	var result TxExecutionResult
	if err := e.client.CallContext(ctx, &result, "executor_executeTx", e.sessionID, tx); err != nil {
		return TxExecutionResult{}, fmt.Errorf("executor: executing tx %s: %w", tx.Hash, err)
	}
	return result, nil
}

func (e *rpcExecutor) RollbackLastTx(ctx context.Context) error {
	if err := e.client.CallContext(ctx, nil, "executor_rollbackLastTx", e.sessionID); err != nil {
		return fmt.Errorf("executor: rolling back last tx: %w", err)
	}
	return nil
}

func (e *rpcExecutor) StartNextL2Block(ctx context.Context, env types.L2BlockEnv) error {
	if err := e.client.CallContext(ctx, nil, "executor_startNextL2Block", e.sessionID, env); err != nil {
		return fmt.Errorf("executor: starting l2 block %d: %w", env.Number, err)
	}
	return nil
}

func (e *rpcExecutor) FinishBatch(ctx context.Context) (types.FinishedBatch, error) {
	var finished types.FinishedBatch
	if err := e.client.CallContext(ctx, &finished, "executor_finishBatch", e.sessionID); err != nil {
		return types.FinishedBatch{}, fmt.Errorf("executor: finishing batch: %w", err)
	}
	return finished, nil
}
