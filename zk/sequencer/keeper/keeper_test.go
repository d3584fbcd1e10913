package keeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gateway-fm/cdk-erigon-lib/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/health"
	seqio "github.com/ledgerwatch/zk-sequencer/zk/sequencer/io"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/sealer"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// fakeIO is an in-memory StateKeeperIO double. Transactions are fed through
// txs; Initialize always starts from an empty cursor with no pending batch
// unless pending is set.
type fakeIO struct {
	mu sync.Mutex

	txs         []types.Transaction
	rejected    []types.UnexecutableReason
	rolledBack  []common.Hash
	pending     *types.PendingBatchData
	chainID     types.L2ChainID
	maxTxsPerL2 int // ShouldSealL2Block fires once this many txs have landed in the block
	unconditionalSealAfter int // ShouldSealL1BatchUnconditionally fires once the current L2 block holds this many txs
	seenTotal   int
}

func (f *fakeIO) Initialize(ctx context.Context) (types.IoCursor, *types.PendingBatchData, error) {
	if f.pending != nil {
		return types.IoCursor{L1Batch: f.pending.L1BatchEnv.Number, NextL2Block: f.pending.PendingL2Blocks[0].Number}, f.pending, nil
	}
	return types.IoCursor{L1Batch: 1, NextL2Block: 1}, nil, nil
}

func (f *fakeIO) WaitForNewBatchParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L1BatchParams, error) {
	return &types.L1BatchParams{
		Timestamp:       uint64(cursor.L1Batch) * 1000,
		ProtocolVersion: types.PreSharedBridge,
		FirstL2BlockParams: types.L2BlockParams{Timestamp: uint64(cursor.L1Batch) * 1000},
	}, nil
}

func (f *fakeIO) WaitForNewL2BlockParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L2BlockParams, error) {
	return &types.L2BlockParams{Timestamp: uint64(cursor.NextL2Block) * 10}, nil
}

func (f *fakeIO) WaitForNextTx(ctx context.Context, maxWait time.Duration, blockTimestamp uint64) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.txs) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	tx := f.txs[0]
	f.txs = f.txs[1:]
	return &tx, nil
}

func (f *fakeIO) Rollback(ctx context.Context, tx types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolledBack = append(f.rolledBack, tx.Hash)
	return nil
}

func (f *fakeIO) Reject(ctx context.Context, tx types.Transaction, reason types.UnexecutableReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
	return nil
}

func (f *fakeIO) LoadBatchVersionID(ctx context.Context, batch uint64) (types.ProtocolVersionID, error) {
	return types.PreSharedBridge, nil
}

func (f *fakeIO) LoadUpgradeTx(ctx context.Context, version types.ProtocolVersionID) (*types.ProtocolUpgradeTx, error) {
	return nil, nil
}

func (f *fakeIO) LoadBaseSystemContracts(ctx context.Context, version types.ProtocolVersionID, cursor types.IoCursor) (types.BaseSystemContracts, error) {
	return types.BaseSystemContracts{}, nil
}

func (f *fakeIO) LoadBatchStateHash(ctx context.Context, batch uint64) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeIO) ChainID() types.L2ChainID { return f.chainID }

func (f *fakeIO) ShouldSealL1BatchUnconditionally(um *updates.UpdatesManager) bool {
	return f.unconditionalSealAfter > 0 && um.TxCount() >= f.unconditionalSealAfter
}

func (f *fakeIO) ShouldSealL2Block(um *updates.UpdatesManager) bool {
	return f.maxTxsPerL2 > 0 && um.TxCount() >= f.maxTxsPerL2
}

var _ seqio.StateKeeperIO = (*fakeIO)(nil)

// fakeExecutor executes every tx as an unconditional success, unless the tx
// hash is listed in rejectHashes (then it reports a VM rejection) or in
// outOfGasHashes (bootloader-out-of-gas).
type fakeExecutor struct {
	rejectHashes  map[common.Hash]bool
	outOfGasHashes map[common.Hash]bool
	executed      []common.Hash
	rolledBack    int
	blocksStarted []uint64
	finished      bool
}

func (e *fakeExecutor) ExecuteTx(ctx context.Context, tx *types.Transaction) (executor.TxExecutionResult, error) {
	e.executed = append(e.executed, tx.Hash)
	if e.outOfGasHashes[tx.Hash] {
		return executor.TxExecutionResult{Kind: executor.ResultBootloaderOutOfGas}, nil
	}
	if e.rejectHashes[tx.Hash] {
		return executor.TxExecutionResult{Kind: executor.ResultRejectedByVM, RejectionReason: "reverted"}, nil
	}
	return executor.TxExecutionResult{
		Kind:         executor.ResultSuccess,
		Metrics:      types.ExecutionMetrics{GasUsed: 21000},
		GasRemaining: 1_000_000,
	}, nil
}

func (e *fakeExecutor) RollbackLastTx(ctx context.Context) error {
	e.rolledBack++
	return nil
}

func (e *fakeExecutor) StartNextL2Block(ctx context.Context, env types.L2BlockEnv) error {
	e.blocksStarted = append(e.blocksStarted, env.Number)
	return nil
}

func (e *fakeExecutor) FinishBatch(ctx context.Context) (types.FinishedBatch, error) {
	e.finished = true
	return types.FinishedBatch{}, nil
}

var _ executor.BatchExecutor = (*fakeExecutor)(nil)

type fakeFactory struct {
	executor       *fakeExecutor // the first batch's executor; later batches get their own
	rejectHashes   map[common.Hash]bool
	outOfGasHashes map[common.Hash]bool
}

func (f *fakeFactory) Init(ctx context.Context, l1BatchNumber uint64, env types.L1BatchEnv, sys types.SystemEnv, pubdata types.PubdataParams) (executor.BatchExecutor, error) {
	reject := f.rejectHashes
	if reject == nil {
		reject = map[common.Hash]bool{}
	}
	outOfGas := f.outOfGasHashes
	if outOfGas == nil {
		outOfGas = map[common.Hash]bool{}
	}
	e := &fakeExecutor{rejectHashes: reject, outOfGasHashes: outOfGas}
	if f.executor == nil {
		f.executor = e
	}
	return e, nil
}

var _ executor.Factory = (*fakeFactory)(nil)

type fakeOutputHandler struct {
	sealedBatches []uint64
	sealedBlocks  []uint64
}

func (h *fakeOutputHandler) Initialize(ctx context.Context, cursor types.IoCursor) error { return nil }

func (h *fakeOutputHandler) HandleL2Block(ctx context.Context, um *updates.UpdatesManager) error {
	h.sealedBlocks = append(h.sealedBlocks, um.L2Block.Number)
	return nil
}

func (h *fakeOutputHandler) HandleL1Batch(ctx context.Context, um *updates.UpdatesManager) error {
	h.sealedBatches = append(h.sealedBatches, um.L1Batch.Number)
	return nil
}

var _ seqio.OutputHandler = (*fakeOutputHandler)(nil)

func runUntilOneBatchSealed(t *testing.T, k *Keeper) {
	t.Helper()
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background(), stop) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(stop)
		<-done
	}
}

// S1: steady state — a handful of ordinary transactions are included and
// the batch seals once the unconditional criterion fires.
func TestKeeper_SteadyStateIncludesAllTxs(t *testing.T) {
	io := &fakeIO{
		txs: []types.Transaction{
			{Hash: common.HexToHash("0x1"), EncodingLen: 100},
			{Hash: common.HexToHash("0x2"), EncodingLen: 100},
			{Hash: common.HexToHash("0x3"), EncodingLen: 100},
		},
		unconditionalSealAfter: 3,
	}
	factory := &fakeFactory{}
	oh := &fakeOutputHandler{}
	k := New(io, factory, oh, sealer.New(), health.New())

	runUntilOneBatchSealed(t, k)

	assert.Equal(t, []uint64{1}, oh.sealedBatches)
	assert.Len(t, factory.executor.executed, 3)
	assert.Empty(t, io.rejected)
	assert.Empty(t, io.rolledBack)
}

// S2: a tx that exceeds a seal criterion (simulated via the gas criterion)
// is excluded and the batch seals without it.
func TestKeeper_ExcludeAndSealStopsBatchWithoutTx(t *testing.T) {
	io := &fakeIO{
		txs: []types.Transaction{
			{Hash: common.HexToHash("0x1"), EncodingLen: 100},
			{Hash: common.HexToHash("0x2"), EncodingLen: 100},
		},
	}
	factory := &fakeFactory{}
	oh := &fakeOutputHandler{}
	gasCriterion := sealer.GasCriterion{BatchGasLimit: 21000}
	k := New(io, factory, oh, sealer.New(gasCriterion), health.New())

	runUntilOneBatchSealed(t, k)

	assert.Equal(t, []uint64{1}, oh.sealedBatches)
	assert.Len(t, factory.executor.executed, 2)
	assert.Equal(t, 1, factory.executor.rolledBack)
	assert.Len(t, io.rolledBack, 1)
}

// S3: the very first tx of a batch is unexecutable (bootloader out of gas);
// there is no smaller batch to retry it against, so it is rejected outright
// and the batch closes with zero included txs.
func TestKeeper_UnexecutableFirstTxIsRejected(t *testing.T) {
	badHash := common.HexToHash("0xbad")
	io := &fakeIO{
		txs: []types.Transaction{{Hash: badHash, EncodingLen: 100}},
	}
	factory := &fakeFactory{outOfGasHashes: map[common.Hash]bool{badHash: true}}
	oh := &fakeOutputHandler{}
	k := New(io, factory, oh, sealer.New(), health.New())

	runUntilOneBatchSealed(t, k)

	assert.Equal(t, []uint64{1}, oh.sealedBatches)
	require.Len(t, io.rejected, 1)
	assert.True(t, io.rejected[0].NotEnoughGasProvided)
}

func TestKeeper_CanceledRunReturnsNilAndNoFatalError(t *testing.T) {
	io := &fakeIO{}
	factory := &fakeFactory{}
	oh := &fakeOutputHandler{}
	k := New(io, factory, oh, sealer.New(), health.New())

	stop := make(chan struct{})
	close(stop)

	err := k.Run(context.Background(), stop)
	assert.NoError(t, err)
}
