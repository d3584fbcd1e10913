// Package io defines the StateKeeperIO (C2) and OutputHandler
// contracts: the sequencer core's only points of contact with the
// persistent store and the pending-transaction stream. Concrete
// implementations (e.g. a Postgres-backed DAL) live outside this package.
package io

import (
	"context"
	"time"

	"github.com/gateway-fm/cdk-erigon-lib/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// StateKeeperIO is the source of batch/block parameters, the pending-tx
// stream, the rejection sink, the protocol-upgrade tx loader, the
// base-system-contracts loader, and the previous-batch state-hash loader.
//
// WaitForNewBatchParams is NOT cancel-safe (spec.md 5): once it returns
// params they must be consumed or lost. Every other blocking method here
// must observe ctx cancellation promptly.
type StateKeeperIO interface {
	// Initialize is called at most once per run.
	Initialize(ctx context.Context) (types.IoCursor, *types.PendingBatchData, error)

	WaitForNewBatchParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L1BatchParams, error)
	WaitForNewL2BlockParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L2BlockParams, error)
	WaitForNextTx(ctx context.Context, maxWait time.Duration, blockTimestamp uint64) (*types.Transaction, error)

	Rollback(ctx context.Context, tx types.Transaction) error
	Reject(ctx context.Context, tx types.Transaction, reason types.UnexecutableReason) error

	LoadBatchVersionID(ctx context.Context, batch uint64) (types.ProtocolVersionID, error)
	LoadUpgradeTx(ctx context.Context, version types.ProtocolVersionID) (*types.ProtocolUpgradeTx, error)
	LoadBaseSystemContracts(ctx context.Context, version types.ProtocolVersionID, cursor types.IoCursor) (types.BaseSystemContracts, error)

	// LoadBatchStateHash must be cancel-safe (spec.md 5): it is raced
	// against the stop signal by wait_for_new_batch_env.
	LoadBatchStateHash(ctx context.Context, batch uint64) (common.Hash, error)

	ChainID() types.L2ChainID

	ShouldSealL1BatchUnconditionally(um *updates.UpdatesManager) bool
	ShouldSealL2Block(um *updates.UpdatesManager) bool
}

// OutputHandler persists executed state before returning; any error it
// returns is propagated and becomes fatal (spec.md 4.7).
type OutputHandler interface {
	Initialize(ctx context.Context, cursor types.IoCursor) error
	HandleL2Block(ctx context.Context, um *updates.UpdatesManager) error
	HandleL1Batch(ctx context.Context, um *updates.UpdatesManager) error
}
