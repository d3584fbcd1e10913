package dal

import (
	"context"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/l1encode"
)

// StoredBatchInfo reads the on-chain-facing summary of one sealed batch,
// the payload unit ethsender.OperationEncoder builds calldata from.
func (d *DB) StoredBatchInfo(ctx context.Context, batch uint64) (l1encode.StoredBatchInfo, error) {
	var info l1encode.StoredBatchInfo
	var batchHash, priorityOpsHash, l2LogsTreeRoot, commitment []byte
	err := d.pool.QueryRow(ctx, `
		SELECT number, hash, index_repeated_storage_changes, number_of_layer1_txs,
		       priority_operations_hash, l2_logs_tree_root, timestamp, commitment
		FROM l1_batches WHERE number = $1
	`, batch).Scan(&info.BatchNumber, &batchHash, &info.IndexRepeatedStorageChanges, &info.NumberOfLayer1Txs,
		&priorityOpsHash, &l2LogsTreeRoot, &info.Timestamp, &commitment)
	if err != nil {
		return l1encode.StoredBatchInfo{}, fmt.Errorf("dal: reading stored batch info for %d: %w", batch, err)
	}
	info.BatchHash = ethcommon.BytesToHash(batchHash)
	info.PriorityOperationsHash = ethcommon.BytesToHash(priorityOpsHash)
	info.L2LogsTreeRoot = ethcommon.BytesToHash(l2LogsTreeRoot)
	info.CommitmentHash = ethcommon.BytesToHash(commitment)
	return info, nil
}

// ProofFor reads the scheduler/fflonk proof bytes landed by the prover core
// for the batch range [firstBatch, lastBatch], per spec.md 6.5's mention of
// proof_generation_details as the submit-proof landing table.
func (d *DB) ProofFor(ctx context.Context, firstBatch, lastBatch uint64) ([]byte, error) {
	var proof []byte
	err := d.pool.QueryRow(ctx, `
		SELECT proof FROM proof_generation_details
		WHERE l1_batch_number = $1
	`, lastBatch).Scan(&proof)
	if err != nil {
		return nil, fmt.Errorf("dal: reading proof for batch range [%d,%d]: %w", firstBatch, lastBatch, err)
	}
	return proof, nil
}

// PriorityOpProofs reads the Merkle inclusion proofs for L1-originated
// (priority) transactions included in [firstBatch, lastBatch], required by
// the post-shared-bridge Execute payload.
func (d *DB) PriorityOpProofs(ctx context.Context, firstBatch, lastBatch uint64) ([][]byte, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT proof FROM priority_op_proofs
		WHERE l1_batch_number BETWEEN $1 AND $2
		ORDER BY priority_op_index
	`, firstBatch, lastBatch)
	if err != nil {
		return nil, fmt.Errorf("dal: reading priority op proofs for range [%d,%d]: %w", firstBatch, lastBatch, err)
	}
	defer rows.Close()

	var proofs [][]byte
	for rows.Next() {
		var proof []byte
		if err := rows.Scan(&proof); err != nil {
			return nil, fmt.Errorf("dal: scanning priority op proof: %w", err)
		}
		proofs = append(proofs, proof)
	}
	return proofs, rows.Err()
}
