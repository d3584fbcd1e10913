// Package keeper implements the StateKeeper loop (C5): the block/batch
// sequencing state machine that drives a BatchExecutor through C1-C4 and
// hands sealed batches to an OutputHandler.
package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerwatch/log/v3"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	seqio "github.com/ledgerwatch/zk-sequencer/zk/sequencer/io"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/health"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/metrics"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/sealer"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// PollWaitDuration bounds how long a single blocking I/O wait runs before
// the keeper re-checks for cancellation. The exact value is unimportant;
// it only needs to be short enough that shutdown feels responsive.
const PollWaitDuration = 1 * time.Second

// Keeper drives the VM through BatchExecutor, accumulates state in an
// UpdatesManager and consults ConditionalSealer to decide when to close a
// block or a batch. It owns its BatchExecutor and I/O handle exclusively;
// nothing else may call into either while Run is in flight (spec.md 5).
type Keeper struct {
	io              seqio.StateKeeperIO
	executorFactory executor.Factory
	outputHandler   seqio.OutputHandler
	sealer          sealer.ConditionalSealer
	health          *health.Updater
	log             log.Logger
}

func New(io seqio.StateKeeperIO, ef executor.Factory, oh seqio.OutputHandler, s sealer.ConditionalSealer, h *health.Updater) *Keeper {
	return &Keeper{
		io:              io,
		executorFactory: ef,
		outputHandler:   oh,
		sealer:          s,
		health:          h,
		log:             log.New("component", "state_keeper"),
	}
}

// Run drives the StateKeeper forever unless stop is closed. A cancellation
// observed at the top of the loop returns nil; any other failure is fatal.
func (k *Keeper) Run(ctx context.Context, stop <-chan struct{}) error {
	err := k.runInner(ctx, stop)
	if err.IsCanceled() {
		k.log.Info("Stop signal received, state keeper is shutting down")
		return nil
	}
	return fmt.Errorf("state_keeper failed: %w", err.Unwrap())
}

func isCanceled(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (k *Keeper) runInner(ctx context.Context, stop <-chan struct{}) Error {
	cursor, pending, err := k.io.Initialize(ctx)
	if err != nil {
		return Fatal(err)
	}
	if err := k.outputHandler.Initialize(ctx, cursor); err != nil {
		return Fatal(err)
	}
	k.health.SetReady(cursor)
	k.log.Info(fmt.Sprintf("Starting state keeper. Next l1 batch to seal: %d, next L2 block to seal: %d", cursor.L1Batch, cursor.NextL2Block))

	var pendingBlocks []types.L2BlockExecutionData
	var batchEnv types.L1BatchEnv
	var sysEnv types.SystemEnv
	var pubdata types.PubdataParams

	if pending != nil {
		k.log.Info(fmt.Sprintf("There exists a pending batch consisting of %d L2 blocks, the first one is %d", len(pending.PendingL2Blocks), firstBlockNumber(pending.PendingL2Blocks)))
		batchEnv, sysEnv, pubdata, pendingBlocks = pending.L1BatchEnv, pending.SystemEnv, pending.PubdataParams, pending.PendingL2Blocks
	} else {
		k.log.Info("There is no open pending batch, starting a new empty batch")
		var werr Error
		sysEnv, batchEnv, pubdata, werr = k.waitForNewBatchEnv(ctx, cursor, stop)
		if werr.err != nil || werr.canceled {
			return werr
		}
	}

	protocolVersion := sysEnv.ProtocolVersion
	um := updates.New(
		updates.L1BatchUpdates{Number: batchEnv.Number, Timestamp: batchEnv.Timestamp, FeeInput: batchEnv.FeeInput, ProtocolVersion: protocolVersion},
		updates.L2BlockUpdates{Number: cursor.NextL2Block, Timestamp: batchEnv.FirstL2BlockParams.Timestamp},
	)

	upgradeTx, err := k.loadProtocolUpgradeTx(ctx, pendingBlocks, protocolVersion, batchEnv.Number)
	if err != nil {
		return Fatal(err)
	}

	be, err := k.executorFactory.Init(ctx, batchEnv.Number, batchEnv, sysEnv, pubdata)
	if err != nil {
		return Fatal(fmt.Errorf("failed creating VM storage: %w", err))
	}

	if cerr := k.replay(ctx, be, um, pendingBlocks, stop); cerr.err != nil || cerr.canceled {
		return cerr
	}

	var sealDelta *time.Time
	for !isCanceled(stop) {
		if cerr := k.processL1Batch(ctx, be, um, upgradeTx, stop); cerr.err != nil || cerr.canceled {
			return cerr
		}

		if um.HasExecutedTxs() {
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

		finished, err := be.FinishBatch(ctx)
		if err != nil {
			return Fatal(err)
		}
		sealedProtocolVersion := um.L1Batch.ProtocolVersion
		_ = finished
		if err := k.outputHandler.HandleL1Batch(ctx, um); err != nil {
			return Fatal(fmt.Errorf("failed sealing L1 batch %d: %w", um.L1Batch.Number, err))
		}

		now := time.Now()
		if sealDelta != nil {
			metrics.ObserveSealDelta(now.Sub(*sealDelta))
		}
		sealDelta = &now

		nextCursor := types.IoCursor{L1Batch: um.L1Batch.Number + 1, NextL2Block: um.L2Block.Number + 1}
		sysEnv, batchEnv, pubdata, werr := k.waitForNewBatchEnv(ctx, nextCursor, stop)
		if werr.err != nil || werr.canceled {
			return werr
		}
		um = updates.New(
			updates.L1BatchUpdates{Number: batchEnv.Number, Timestamp: batchEnv.Timestamp, FeeInput: batchEnv.FeeInput, ProtocolVersion: sysEnv.ProtocolVersion},
			updates.L2BlockUpdates{Number: nextCursor.NextL2Block, Timestamp: batchEnv.FirstL2BlockParams.Timestamp},
		)
		be, err = k.executorFactory.Init(ctx, batchEnv.Number, batchEnv, sysEnv, pubdata)
		if err != nil {
			return Fatal(err)
		}

		if sysEnv.ProtocolVersion != sealedProtocolVersion {
			upgradeTx, err = k.io.LoadUpgradeTx(ctx, sysEnv.ProtocolVersion)
			if err != nil {
				return Fatal(fmt.Errorf("failed loading upgrade transaction for %v: %w", sysEnv.ProtocolVersion, err))
			}
		} else {
			upgradeTx = nil
		}
	}
	return Canceled()
}

func firstBlockNumber(blocks []types.L2BlockExecutionData) uint64 {
	if len(blocks) == 0 {
		return 0
	}
	return blocks[0].Number
}
