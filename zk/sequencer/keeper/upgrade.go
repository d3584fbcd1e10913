package keeper

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// loadProtocolUpgradeTx decides whether the batch about to be sequenced
// needs a protocol-upgrade transaction injected as its first tx (spec.md
// 4.1.1). A batch resumed from pending blocks never needs one re-requested:
// if it had one, it was already executed before the restart.
func (k *Keeper) loadProtocolUpgradeTx(ctx context.Context, pendingBlocks []types.L2BlockExecutionData, protocolVersion types.ProtocolVersionID, batchNumber uint64) (*types.ProtocolUpgradeTx, error) {
	if len(pendingBlocks) > 0 {
		return nil, nil
	}
	if batchNumber <= 1 {
		if protocolVersion == types.PreSharedBridge {
			return nil, nil
		}
		return k.io.LoadUpgradeTx(ctx, protocolVersion)
	}
	prevVersion, err := k.io.LoadBatchVersionID(ctx, batchNumber-1)
	if err != nil {
		return nil, fmt.Errorf("failed loading protocol version of previous batch: %w", err)
	}
	if prevVersion == protocolVersion {
		return nil, nil
	}
	return k.io.LoadUpgradeTx(ctx, protocolVersion)
}

// processUpgradeTx executes a protocol-upgrade transaction before any
// regular transaction in the batch (spec.md 4.1.3). It must be the very
// first transaction executed against a fresh VM; anything but Success
// execution is fatal, since upgrade txs are produced by the protocol
// itself and must always succeed.
func (k *Keeper) processUpgradeTx(ctx context.Context, be executor.BatchExecutor, um *updates.UpdatesManager, upgradeTx types.ProtocolUpgradeTx) Error {
	if um.TxCount() != 0 {
		return Fatal(fmt.Errorf("protocol upgrade tx must be the first tx executed in a batch, but %d txs were already executed", um.TxCount()))
	}
	result, err := be.ExecuteTx(ctx, &upgradeTx.Tx)
	if err != nil {
		return Fatal(fmt.Errorf("failed executing protocol upgrade transaction: %w", err))
	}
	if !result.IsSuccess() {
		return Fatal(fmt.Errorf("protocol upgrade transaction %s failed execution: %v", upgradeTx.Tx.Hash, result.RejectionReason))
	}
	if result.IsFailed {
		return Fatal(fmt.Errorf("protocol upgrade transaction %s reverted", upgradeTx.Tx.Hash))
	}
	um.ExtendFromExecutedTransaction(upgradeTx.Tx, result)
	return Error{}
}
