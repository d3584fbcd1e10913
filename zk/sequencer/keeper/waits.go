package keeper

import (
	"context"
	"fmt"

	"github.com/gateway-fm/cdk-erigon-lib/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// waitForNewBatchParams polls io.WaitForNewBatchParams until it returns
// params or stop is closed. NOT cancel-safe past the point it returns
// params: the caller must consume them, never discard (spec.md 5).
func (k *Keeper) waitForNewBatchParams(ctx context.Context, cursor types.IoCursor, stop <-chan struct{}) (*types.L1BatchParams, Error) {
	for {
		if isCanceled(stop) {
			return nil, Canceled()
		}
		params, err := k.io.WaitForNewBatchParams(ctx, cursor, PollWaitDuration)
		if err != nil {
			return nil, Fatal(fmt.Errorf("error waiting for new batch params: %w", err))
		}
		if params != nil {
			return params, Error{}
		}
	}
}

// waitForNewBatchEnv builds the full SystemEnv/L1BatchEnv/PubdataParams
// triple for the next batch. The state-hash lookup is raced against stop,
// since it (unlike waitForNewBatchParams) is cancel-safe.
func (k *Keeper) waitForNewBatchEnv(ctx context.Context, cursor types.IoCursor, stop <-chan struct{}) (types.SystemEnv, types.L1BatchEnv, types.PubdataParams, Error) {
	params, werr := k.waitForNewBatchParams(ctx, cursor, stop)
	if werr.err != nil || werr.canceled {
		return types.SystemEnv{}, types.L1BatchEnv{}, types.PubdataParams{}, werr
	}

	type hashResult struct {
		hash common.Hash
		err  error
	}
	prevHashCh := make(chan hashResult, 1)
	go func() {
		h, err := k.io.LoadBatchStateHash(ctx, cursor.L1Batch-1)
		prevHashCh <- hashResult{h, err}
	}()

	select {
	case <-stop:
		return types.SystemEnv{}, types.L1BatchEnv{}, types.PubdataParams{}, Canceled()
	case res := <-prevHashCh:
		if res.err != nil {
			return types.SystemEnv{}, types.L1BatchEnv{}, types.PubdataParams{}, Fatal(fmt.Errorf("failed loading previous batch state hash: %w", res.err))
		}
	}

	sysContracts, err := k.io.LoadBaseSystemContracts(ctx, params.ProtocolVersion, cursor)
	if err != nil {
		return types.SystemEnv{}, types.L1BatchEnv{}, types.PubdataParams{}, Fatal(err)
	}

	sysEnv := types.SystemEnv{
		ProtocolVersion:     params.ProtocolVersion,
		BaseSystemContracts: sysContracts,
		ChainID:             k.io.ChainID(),
	}
	batchEnv := types.L1BatchEnv{
		Number:              cursor.L1Batch,
		Timestamp:           params.Timestamp,
		FeeInput:            params.FeeInput,
		FirstL2BlockParams:  params.FirstL2BlockParams,
	}
	pubdata := types.PubdataParams{}

	return sysEnv, batchEnv, pubdata, Error{}
}

// waitForNewL2BlockParams polls until a non-nil L2BlockParams is available
// or stop is closed. It is cancel-safe: a pending-but-not-yet-returned poll
// never silently discards params.
func (k *Keeper) waitForNewL2BlockParams(ctx context.Context, um *updates.UpdatesManager, stop <-chan struct{}) (*types.L2BlockParams, Error) {
	cursor := types.IoCursor{L1Batch: um.L1Batch.Number, NextL2Block: um.L2Block.Number + 1}
	for {
		if isCanceled(stop) {
			return nil, Canceled()
		}
		params, err := k.io.WaitForNewL2BlockParams(ctx, cursor, PollWaitDuration)
		if err != nil {
			return nil, Fatal(fmt.Errorf("error waiting for new L2 block params: %w", err))
		}
		if params != nil {
			return params, Error{}
		}
	}
}

// waitForNextTx polls for the next pending transaction, honoring stop.
func (k *Keeper) waitForNextTx(ctx context.Context, blockTimestamp uint64, stop <-chan struct{}) (*types.Transaction, Error) {
	if isCanceled(stop) {
		return nil, Canceled()
	}
	tx, err := k.io.WaitForNextTx(ctx, PollWaitDuration, blockTimestamp)
	if err != nil {
		return nil, Fatal(fmt.Errorf("error waiting for next transaction: %w", err))
	}
	return tx, Error{}
}
