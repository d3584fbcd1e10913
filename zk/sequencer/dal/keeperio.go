package dal

import (
	"context"
	"fmt"
	"time"

	"github.com/gateway-fm/cdk-erigon-lib/common"
	"github.com/jackc/pgx/v4"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/updates"
)

// KeeperIO is the pgx-backed io.StateKeeperIO: it pulls pending transactions
// from the mempool table and batch/block open parameters from l1_batches /
// l2_blocks, the same tables the EthTxAggregator side (dal.go) reads from
// once a batch is sealed.
type KeeperIO struct {
	db      *DB
	chainID types.L2ChainID

	maxL2BlockTxs    int
	unconditionalSealAfter time.Duration
}

// NewKeeperIO builds a KeeperIO bound to db. chainID is this rollup's own
// chain id (spec.md 5.1); maxL2BlockTxs/unconditionalSealAfter mirror the
// two ShouldSeal* decisions a StateKeeperIO implementation owns directly
// rather than delegating to sealer.Criterion, since they are I/O-shape
// decisions (block fullness, wall-clock staleness of the oldest open batch)
// rather than VM-execution-metric decisions.
func NewKeeperIO(db *DB, chainID types.L2ChainID, maxL2BlockTxs int, unconditionalSealAfter time.Duration) *KeeperIO {
	return &KeeperIO{db: db, chainID: chainID, maxL2BlockTxs: maxL2BlockTxs, unconditionalSealAfter: unconditionalSealAfter}
}

func (k *KeeperIO) ChainID() types.L2ChainID { return k.chainID }

// Initialize resumes from the last sealed batch/block recorded in
// l1_batches/l2_blocks. A non-nil PendingBatchData is returned only when a
// batch row exists with no matching seal record, meaning a prior run
// crashed mid-batch and its L2 blocks must be replayed before new work
// begins.
func (k *KeeperIO) Initialize(ctx context.Context) (types.IoCursor, *types.PendingBatchData, error) {
	var lastBatch, lastBlock uint64
	var prevTimestamp uint64
	err := k.db.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(number), 0) FROM l1_batches WHERE sealed_at IS NOT NULL
	`).Scan(&lastBatch)
	if err != nil {
		return types.IoCursor{}, nil, fmt.Errorf("dal: loading last sealed batch: %w", err)
	}
	err = k.db.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(number), 0), COALESCE(MAX(timestamp), 0)
		FROM l2_blocks WHERE l1_batch_number = (SELECT COALESCE(MAX(number), 0) FROM l1_batches)
	`).Scan(&lastBlock, &prevTimestamp)
	if err != nil {
		return types.IoCursor{}, nil, fmt.Errorf("dal: loading last l2 block: %w", err)
	}

	cursor := types.IoCursor{
		L1Batch:              lastBatch + 1,
		NextL2Block:          lastBlock + 1,
		PrevL2BlockTimestamp: prevTimestamp,
	}

	pending, err := k.loadPendingBatch(ctx, lastBatch+1)
	if err != nil {
		return types.IoCursor{}, nil, err
	}
	return cursor, pending, nil
}

// loadPendingBatch returns the in-progress replay data for batch if an
// l1_batches row for it exists without a sealed_at timestamp, nil otherwise.
func (k *KeeperIO) loadPendingBatch(ctx context.Context, batch uint64) (*types.PendingBatchData, error) {
	var exists bool
	err := k.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM l1_batches WHERE number = $1 AND sealed_at IS NULL)
	`, batch).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("dal: checking pending batch %d: %w", batch, err)
	}
	if !exists {
		return nil, nil
	}

	rows, err := k.db.pool.Query(ctx, `
		SELECT number, timestamp FROM l2_blocks
		WHERE l1_batch_number = $1 ORDER BY number
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("dal: loading pending l2 blocks for batch %d: %w", batch, err)
	}
	defer rows.Close()

	var blocks []types.L2BlockExecutionData
	for rows.Next() {
		var b types.L2BlockExecutionData
		if err := rows.Scan(&b.Number, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("dal: scanning pending l2 block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.PendingBatchData{
		L1BatchEnv:      types.L1BatchEnv{Number: batch},
		PendingL2Blocks: blocks,
	}, nil
}

// WaitForNewBatchParams blocks polling the fee_params table (the operator's
// current L1 gas price / fair pubdata price view) until maxWait elapses,
// returning the freshest row once available.
func (k *KeeperIO) WaitForNewBatchParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L1BatchParams, error) {
	deadline := time.Now().Add(maxWait)
	for {
		var ts uint64
		var version uint64
		var l1GasPrice, fairPubdataPrice uint64
		err := k.db.pool.QueryRow(ctx, `
			SELECT EXTRACT(EPOCH FROM now())::bigint, protocol_version, l1_gas_price, fair_pubdata_price
			FROM fee_params ORDER BY id DESC LIMIT 1
		`).Scan(&ts, &version, &l1GasPrice, &fairPubdataPrice)
		if err == nil {
			return &types.L1BatchParams{
				Timestamp:       ts,
				ProtocolVersion: types.ProtocolVersionID(version),
				FeeInput:        types.FeeInput{L1GasPrice: l1GasPrice, FairPubdataPrice: fairPubdataPrice},
				FirstL2BlockParams: types.L2BlockParams{Timestamp: ts},
			}, nil
		}
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("dal: reading fee params: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(pollInterval)
	}
}

// WaitForNewL2BlockParams opens the next L2 block at the current wall
// clock; no DB round trip is needed since nothing but the timestamp varies.
func (k *KeeperIO) WaitForNewL2BlockParams(ctx context.Context, cursor types.IoCursor, maxWait time.Duration) (*types.L2BlockParams, error) {
	return &types.L2BlockParams{Timestamp: uint64(time.Now().Unix())}, nil
}

// WaitForNextTx pops the oldest not-yet-delivered row from the mempool
// table, polling until one arrives or maxWait elapses.
func (k *KeeperIO) WaitForNextTx(ctx context.Context, maxWait time.Duration, blockTimestamp uint64) (*types.Transaction, error) {
	deadline := time.Now().Add(maxWait)
	for {
		tx, err := k.popMempoolTx(ctx)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(pollInterval)
	}
}

func (k *KeeperIO) popMempoolTx(ctx context.Context) (*types.Transaction, error) {
	var tx types.Transaction
	var hash []byte
	err := k.db.withTx(ctx, func(pgTx pgx.Tx) error {
		err := pgTx.QueryRow(ctx, `
			SELECT hash, is_l1, encoding_len, received_at FROM mempool_txs
			ORDER BY received_at LIMIT 1 FOR UPDATE SKIP LOCKED
		`).Scan(&hash, &tx.IsL1, &tx.EncodingLen, &tx.ReceivedAt)
		if err == pgx.ErrNoRows {
			return errNoPendingTx
		}
		if err != nil {
			return fmt.Errorf("dal: reading mempool tx: %w", err)
		}
		_, err = pgTx.Exec(ctx, `DELETE FROM mempool_txs WHERE hash = $1`, hash)
		return err
	})
	if err == errNoPendingTx {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx.Hash = common.BytesToHash(hash)
	return &tx, nil
}

// Rollback re-queues tx at the front of the mempool so it is retried after
// the failed attempt that triggered it is discarded.
func (k *KeeperIO) Rollback(ctx context.Context, tx types.Transaction) error {
	_, err := k.db.pool.Exec(ctx, `
		INSERT INTO mempool_txs (hash, is_l1, encoding_len, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO NOTHING
	`, tx.Hash.Bytes(), tx.IsL1, tx.EncodingLen, tx.ReceivedAt)
	if err != nil {
		return fmt.Errorf("dal: rolling back tx %s: %w", tx.Hash, err)
	}
	return nil
}

// Reject permanently records tx as unexecutable so it is never resubmitted.
func (k *KeeperIO) Reject(ctx context.Context, tx types.Transaction, reason types.UnexecutableReason) error {
	_, err := k.db.pool.Exec(ctx, `
		INSERT INTO rejected_txs (hash, reason, not_enough_gas) VALUES ($1, $2, $3)
	`, tx.Hash.Bytes(), reason.Halt, reason.NotEnoughGasProvided)
	if err != nil {
		return fmt.Errorf("dal: rejecting tx %s: %w", tx.Hash, err)
	}
	return nil
}

func (k *KeeperIO) LoadBatchVersionID(ctx context.Context, batch uint64) (types.ProtocolVersionID, error) {
	return k.db.BatchProtocolVersion(ctx, batch)
}

// LoadUpgradeTx returns the synthetic protocol-upgrade transaction for
// version, or nil if that version carries none.
func (k *KeeperIO) LoadUpgradeTx(ctx context.Context, version types.ProtocolVersionID) (*types.ProtocolUpgradeTx, error) {
	var hash []byte
	var encodingLen int
	err := k.db.pool.QueryRow(ctx, `
		SELECT tx_hash, encoding_len FROM protocol_upgrades WHERE to_version = $1
	`, uint64(version)).Scan(&hash, &encodingLen)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dal: loading upgrade tx for version %d: %w", version, err)
	}
	return &types.ProtocolUpgradeTx{
		Tx:        types.Transaction{Hash: common.BytesToHash(hash), IsUpgradeTx: true, EncodingLen: encodingLen},
		ToVersion: version,
	}, nil
}

func (k *KeeperIO) LoadBaseSystemContracts(ctx context.Context, version types.ProtocolVersionID, cursor types.IoCursor) (types.BaseSystemContracts, error) {
	var bootloader, defaultAA []byte
	var evmEmulator []byte
	err := k.db.pool.QueryRow(ctx, `
		SELECT bootloader_hash, default_aa_hash, evm_emulator_hash
		FROM base_system_contracts WHERE protocol_version = $1
	`, uint64(version)).Scan(&bootloader, &defaultAA, &evmEmulator)
	if err != nil {
		return types.BaseSystemContracts{}, fmt.Errorf("dal: loading base system contracts for version %d: %w", version, err)
	}
	sys := types.BaseSystemContracts{
		BootloaderHash: common.BytesToHash(bootloader),
		DefaultAAHash:  common.BytesToHash(defaultAA),
	}
	if len(evmEmulator) > 0 {
		h := common.BytesToHash(evmEmulator)
		sys.EvmEmulatorHash = &h
	}
	return sys, nil
}

func (k *KeeperIO) LoadBatchStateHash(ctx context.Context, batch uint64) (common.Hash, error) {
	var hash []byte
	err := k.db.pool.QueryRow(ctx, `SELECT state_hash FROM l1_batches WHERE number = $1`, batch).Scan(&hash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("dal: loading state hash for batch %d: %w", batch, err)
	}
	return common.BytesToHash(hash), nil
}

// ShouldSealL1BatchUnconditionally seals once the currently open batch's
// first-block timestamp is older than unconditionalSealAfter, regardless of
// whether any sealer.Criterion has fired yet, to bound operator latency.
func (k *KeeperIO) ShouldSealL1BatchUnconditionally(um *updates.UpdatesManager) bool {
	if k.unconditionalSealAfter <= 0 {
		return false
	}
	openedAt := time.Unix(int64(um.L1Batch.Timestamp), 0)
	return time.Since(openedAt) >= k.unconditionalSealAfter
}

// ShouldSealL2Block seals the in-progress L2 block once it holds
// maxL2BlockTxs transactions, independent of the batch-level seal criteria.
func (k *KeeperIO) ShouldSealL2Block(um *updates.UpdatesManager) bool {
	if k.maxL2BlockTxs <= 0 {
		return false
	}
	return um.TxCount() >= k.maxL2BlockTxs
}

// pollInterval bounds how often WaitForNewBatchParams/WaitForNextTx retry
// their query while polling for new data within maxWait.
const pollInterval = 50 * time.Millisecond

var errNoPendingTx = fmt.Errorf("dal: no pending mempool tx")

// OutputHandler is the pgx-backed io.OutputHandler: it persists sealed L2
// blocks and L1 batches, the write side mirroring KeeperIO's read side.
type OutputHandler struct {
	db *DB
}

func NewOutputHandler(db *DB) *OutputHandler { return &OutputHandler{db: db} }

func (h *OutputHandler) Initialize(ctx context.Context, cursor types.IoCursor) error {
	return nil
}

// HandleL2Block persists the just-sealed L2 block's metadata. Storage
// writes and logs themselves are the executor's concern; this only records
// the block boundary so KeeperIO.Initialize can resume from it.
func (h *OutputHandler) HandleL2Block(ctx context.Context, um *updates.UpdatesManager) error {
	_, err := h.db.pool.Exec(ctx, `
		INSERT INTO l2_blocks (number, l1_batch_number, timestamp)
		VALUES ($1, $2, $3)
	`, um.L2Block.Number, um.L1Batch.Number, um.L2Block.Timestamp)
	if err != nil {
		return fmt.Errorf("dal: persisting sealed l2 block: %w", err)
	}
	return nil
}

// HandleL1Batch marks the batch row sealed by setting sealed_at, which
// KeeperIO.Initialize reads on restart. It does not write the hash column
// that DB.SealedBatchCount (aggregator.BatchStorage) counts. The finished batch's state
// hash/pubdata/logs are reported by executor.BatchExecutor.FinishBatch
// directly to the keeper, not threaded through UpdatesManager.
func (h *OutputHandler) HandleL1Batch(ctx context.Context, um *updates.UpdatesManager) error {
	_, err := h.db.pool.Exec(ctx, `
		UPDATE l1_batches SET sealed_at = now() WHERE number = $1
	`, um.L1Batch.Number)
	if err != nil {
		return fmt.Errorf("dal: sealing l1 batch: %w", err)
	}
	return nil
}
