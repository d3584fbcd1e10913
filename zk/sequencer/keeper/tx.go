package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/metrics"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/sealer"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// processL1Batch runs the per-tx loop of a single L1 batch (spec.md 4.1.4-
// 4.1.6): inject the protocol upgrade tx if one is pending, then repeatedly
// pull, execute and classify transactions until some criterion decides the
// batch must close.
func (k *Keeper) processL1Batch(ctx context.Context, be executor.BatchExecutor, um *updates.UpdatesManager, upgradeTx *types.ProtocolUpgradeTx, stop <-chan struct{}) Error {
	if upgradeTx != nil {
		if cerr := k.processUpgradeTx(ctx, be, um, *upgradeTx); cerr.err != nil || cerr.canceled {
			return cerr
		}
	}

	for {
		if isCanceled(stop) {
			return Canceled()
		}

		if k.io.ShouldSealL1BatchUnconditionally(um) {
			k.log.Info(fmt.Sprintf("L1 batch %d will be sealed unconditionally, e.g. by the deadline", um.L1Batch.Number))
			metrics.RecordSealReason("unconditional")
			return Error{}
		}

		if um.HasExecutedTxs() && k.io.ShouldSealL2Block(um) {
			if err := k.sealL2Block(ctx, um); err != nil {
				return Fatal(err)
			}
			params, werr := k.waitForNewL2BlockParams(ctx, um, stop)
			if werr.err != nil || werr.canceled {
				return werr.Context("wait_for_new_l2_block_params")
			}
			if err := k.startNextL2Block(ctx, params, um, be); err != nil {
				return Fatal(err)
			}
		}

		tx, werr := k.waitForNextTx(ctx, um.L2Block.Timestamp, stop)
		if werr.err != nil || werr.canceled {
			return werr.Context("wait_for_next_tx")
		}
		if tx == nil {
			continue
		}

		resolution, err := k.processOneTx(ctx, be, um, *tx)
		if err != nil {
			return Fatal(err)
		}

		if resolution.IsNoSeal() || resolution.IsIncludeAndSeal() {
			if resolution.IsIncludeAndSeal() {
				metrics.RecordSealReason(resolution.Source())
				return Error{}
			}
			continue
		}

		// ExcludeAndSeal / Unexecutable: this tx's effects must not be kept,
		// and both ranks force the batch to close now (resolution.ShouldSeal()).
		if err := be.RollbackLastTx(ctx); err != nil {
			return Fatal(fmt.Errorf("failed rolling back rejected tx %s: %w", tx.Hash, err))
		}
		if resolution.IsUnexecutable() {
			if err := k.io.Reject(ctx, *tx, resolution.Reason()); err != nil {
				return Fatal(fmt.Errorf("failed rejecting unexecutable tx %s: %w", tx.Hash, err))
			}
		} else {
			if err := k.io.Rollback(ctx, *tx); err != nil {
				return Fatal(fmt.Errorf("failed rolling back excluded tx %s in io: %w", tx.Hash, err))
			}
		}
		metrics.RecordSealReason(resolution.Source())
		return Error{}
	}
}

// processOneTx executes a single transaction and classifies the result
// into a SealResolution (spec.md 4.1.4). Execution failures that are a
// property of the VM running out of gas for the tx, rather than the tx
// itself being invalid, are only ever classified Unexecutable (the tx is
// rejected) when this is the very first transaction of the batch — there is
// no smaller batch to retry the tx against.
func (k *Keeper) processOneTx(ctx context.Context, be executor.BatchExecutor, um *updates.UpdatesManager, tx types.Transaction) (sealer.Resolution, error) {
	isFirstTxInBatch := um.TxCount() == 0

	result, err := be.ExecuteTx(ctx, &tx)
	if err != nil {
		return sealer.Resolution{}, fmt.Errorf("failed executing tx %s: %w", tx.Hash, err)
	}

	switch result.Kind {
	case executor.ResultBootloaderOutOfGas:
		if isFirstTxInBatch {
			return sealer.Unexecutable(notEnoughGasReason(result)), nil
		}
		return sealer.ExcludeAndSeal("bootloader_out_of_gas"), nil
	case executor.ResultRejectedByVM:
		if result.NotEnoughGasProvided {
			if isFirstTxInBatch {
				return sealer.Unexecutable(notEnoughGasReason(result)), nil
			}
			return sealer.ExcludeAndSeal("not_enough_gas_provided"), nil
		}
		return sealer.Unexecutable(types.UnexecutableReason{Halt: result.RejectionReason}), nil
	}

	blockData, txData := um.SealDataForCandidate(tx, result)
	resolution := k.sealer.ShouldSealL1Batch(um.L1Batch.Number, int64(um.L1Batch.Timestamp), um.TxCount()+1, um.L1TxCount()+boolToInt(tx.IsL1), blockData, txData, um.L1Batch.ProtocolVersion)
	if resolution.IsNoSeal() || resolution.IsIncludeAndSeal() {
		um.ExtendFromExecutedTransaction(tx, result)
	}
	return resolution, nil
}

func notEnoughGasReason(result executor.TxExecutionResult) types.UnexecutableReason {
	return types.UnexecutableReason{NotEnoughGasProvided: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sealL2Block hands the just-finished L2 block to the output handler. It
// does not open the next block; the caller does that once new params are
// available, so the VM is never left without an open block for longer than
// it takes to fetch them.
func (k *Keeper) sealL2Block(ctx context.Context, um *updates.UpdatesManager) error {
	start := time.Now()
	if err := k.outputHandler.HandleL2Block(ctx, um); err != nil {
		return fmt.Errorf("failed persisting L2 block %d: %w", um.L2Block.Number, err)
	}
	metrics.ObserveL2BlockSeal(time.Since(start))
	return nil
}

func (k *Keeper) startNextL2Block(ctx context.Context, params *types.L2BlockParams, um *updates.UpdatesManager, be executor.BatchExecutor) error {
	nextNumber := um.L2Block.Number + 1
	um.PushL2Block(*params, nextNumber)
	return be.StartNextL2Block(ctx, types.L2BlockEnv{
		Number:        nextNumber,
		Timestamp:     params.Timestamp,
		VirtualBlocks: params.VirtualBlocks,
	})
}
