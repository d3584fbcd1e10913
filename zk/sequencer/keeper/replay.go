package keeper

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// replay re-executes every transaction of a resumed-from-disk pending
// batch against the freshly-initialized executor (spec.md 4.1.2). The
// executor has no memory of anything that ran before the restart, so this
// must reproduce, deterministically, the exact sequence of ExecuteTx calls
// that originally built the batch. Any transaction that now fails to
// execute successfully is fatal: it already succeeded once, and determinism
// (invariant 2) guarantees it must succeed identically again.
func (k *Keeper) replay(ctx context.Context, be executor.BatchExecutor, um *updates.UpdatesManager, pendingBlocks []types.L2BlockExecutionData, stop <-chan struct{}) Error {
	if len(pendingBlocks) == 0 {
		return Error{}
	}
	k.log.Info(fmt.Sprintf("Replaying %d pending L2 blocks after restart", len(pendingBlocks)))

	for i, block := range pendingBlocks {
		if isCanceled(stop) {
			return Canceled()
		}
		if i > 0 {
			um.PushL2Block(types.L2BlockParams{Timestamp: block.Timestamp, VirtualBlocks: block.VirtualBlocks}, block.Number)
			if err := be.StartNextL2Block(ctx, types.L2BlockEnv{
				Number:        block.Number,
				Timestamp:     block.Timestamp,
				VirtualBlocks: block.VirtualBlocks,
			}); err != nil {
				return Fatal(fmt.Errorf("failed starting L2 block %d during replay: %w", block.Number, err))
			}
		}
		for _, tx := range block.Txs {
			result, err := be.ExecuteTx(ctx, &tx)
			if err != nil {
				return Fatal(fmt.Errorf("failed re-executing stored tx %s during replay: %w", tx.Hash, err))
			}
			if !result.IsSuccess() {
				return Fatal(fmt.Errorf("re-executing stored tx %s failed during replay (kind=%v): "+
					"transaction was executed successfully before the restart, but failed after it", tx.Hash, result.Kind))
			}
			um.ExtendFromExecutedTransaction(tx, result)
		}
	}
	return Error{}
}
