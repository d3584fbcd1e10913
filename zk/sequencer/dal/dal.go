// Package dal is the pgx-backed implementation of the persisted-state
// contract spec.md 6.5 describes only conceptually: eth_txs, l1_batches,
// server_notifications. It fulfils aggregator.BatchStorage and
// ethsender.Persister, and gives the rest of the core one concrete
// collaborator to test against instead of leaving the boundary purely
// abstract, the same way the teacher keeps zk/hermez_db as the one
// concrete adapter behind its own kv.RwTx-shaped interfaces.
package dal

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// DB wraps a pgxpool.Pool with the queries the sequencer core needs.
type DB struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("dal: failed connecting: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() { d.pool.Close() }

// SealedBatchCount returns the number of l1_batches rows with a non-null
// state root (hash column). A batch the StateKeeper has sealed (sealed_at
// set) is not counted until its hash is recorded.
func (d *DB) SealedBatchCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := d.pool.QueryRow(ctx, `SELECT count(*) FROM l1_batches WHERE hash IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("dal: counting sealed batches: %w", err)
	}
	return count, nil
}

func (d *DB) LastCommittedBatch(ctx context.Context) (uint64, error) {
	return d.lastBatchWithEthTxColumn(ctx, "eth_commit_tx_id")
}

func (d *DB) LastProvenBatch(ctx context.Context) (uint64, error) {
	return d.lastBatchWithEthTxColumn(ctx, "eth_prove_tx_id")
}

func (d *DB) LastExecutedBatch(ctx context.Context) (uint64, error) {
	return d.lastBatchWithEthTxColumn(ctx, "eth_execute_tx_id")
}

func (d *DB) lastBatchWithEthTxColumn(ctx context.Context, column string) (uint64, error) {
	var n *uint64
	query := fmt.Sprintf(`SELECT max(number) FROM l1_batches WHERE %s IS NOT NULL`, column)
	if err := d.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("dal: reading last batch for %s: %w", column, err)
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

func (d *DB) BatchProtocolVersion(ctx context.Context, batch uint64) (types.ProtocolVersionID, error) {
	var v uint64
	err := d.pool.QueryRow(ctx, `SELECT protocol_version FROM l1_batches WHERE number = $1`, batch).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("dal: reading protocol version for batch %d: %w", batch, err)
	}
	return types.ProtocolVersionID(v), nil
}

// NextNonce computes max(db_nonce(sender, is_gateway), l1Nonce), per
// spec.md 4.6 step 6. It runs as its own query on the pool, not inside
// SaveEthTx's transaction, so the nonce read and the insert that uses it
// are not atomic.
func (d *DB) NextNonce(ctx context.Context, sender common.Address, isGateway bool, l1Nonce uint64) (uint64, error) {
	var dbNonce *uint64
	err := d.pool.QueryRow(ctx, `
		SELECT max(nonce) + 1 FROM eth_txs WHERE sender_addr = $1 AND is_gateway = $2
	`, sender.Bytes(), isGateway).Scan(&dbNonce)
	if err != nil {
		return 0, fmt.Errorf("dal: reading db nonce: %w", err)
	}
	if dbNonce == nil || *dbNonce < l1Nonce {
		return l1Nonce, nil
	}
	return *dbNonce, nil
}

// SaveEthTx persists the encoded operation and associates the batch range
// it covers, inside one transaction: both writes commit together or not at
// all, so a crash between them can never leave an orphaned eth_tx row.
func (d *DB) SaveEthTx(ctx context.Context, tx types.EthTx, firstBatch, lastBatch uint64) error {
	return d.withTx(ctx, func(pgxTx pgx.Tx) error {
		var id uint64
		err := pgxTx.QueryRow(ctx, `
			INSERT INTO eth_txs (nonce, calldata, operation_type, contract_addr, predicted_gas, sender_addr, blob_sidecar, chain_id, is_gateway)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, tx.Nonce, tx.Calldata, tx.OperationType, tx.ContractAddr.Bytes(), tx.PredictedGas, senderBytes(tx.SenderAddr), tx.BlobSidecar, tx.ChainID, tx.IsGateway).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting eth_tx: %w", err)
		}

		column, err := ethTxColumnForOperation(tx.OperationType)
		if err != nil {
			return err
		}
		updateQuery := fmt.Sprintf(`UPDATE l1_batches SET %s = $1 WHERE number BETWEEN $2 AND $3`, column)
		if _, err := pgxTx.Exec(ctx, updateQuery, id, firstBatch, lastBatch); err != nil {
			return fmt.Errorf("associating eth_tx with batch range: %w", err)
		}
		return nil
	})
}

func ethTxColumnForOperation(operationType string) (string, error) {
	switch operationType {
	case "Commit":
		return "eth_commit_tx_id", nil
	case "PublishProofOnchain":
		return "eth_prove_tx_id", nil
	case "Execute":
		return "eth_execute_tx_id", nil
	default:
		return "", fmt.Errorf("dal: unknown operation type %q", operationType)
	}
}

func senderBytes(addr *common.Address) []byte {
	if addr == nil {
		return nil
	}
	return addr.Bytes()
}

func (d *DB) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dal: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dal: committing transaction: %w", err)
	}
	return nil
}

// GatewayMigrationState derives the migration state from the most recent
// server_notifications row of kind "GatewayMigration", defaulting to Not
// when no such row exists.
func (d *DB) GatewayMigrationState(ctx context.Context) (types.GatewayMigrationState, error) {
	var status *string
	err := d.pool.QueryRow(ctx, `
		SELECT status FROM server_notifications
		WHERE kind = 'GatewayMigration'
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&status)
	if err == pgx.ErrNoRows {
		return types.GatewayNotMigrating, nil
	}
	if err != nil {
		return types.GatewayNotMigrating, fmt.Errorf("dal: reading gateway migration state: %w", err)
	}
	if status == nil {
		return types.GatewayNotMigrating, nil
	}
	switch *status {
	case "Started":
		return types.GatewayMigrationStarted, nil
	case "Finalized":
		return types.GatewayMigrationFinalized, nil
	default:
		return types.GatewayNotMigrating, nil
	}
}

func (d *DB) TxAggregationOnlyProveAndExecute(ctx context.Context) (bool, error) {
	return d.boolNotification(ctx, "tx_aggregation_only_prove_and_execute")
}

func (d *DB) TxAggregationPaused(ctx context.Context) (bool, error) {
	return d.boolNotification(ctx, "tx_aggregation_paused")
}

func (d *DB) boolNotification(ctx context.Context, kind string) (bool, error) {
	var count int
	err := d.pool.QueryRow(ctx, `SELECT count(*) FROM server_notifications WHERE kind = $1`, kind).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dal: reading %s notification: %w", kind, err)
	}
	return count > 0, nil
}

func (d *DB) PendingProtocolVersion(ctx context.Context) (*types.ProtocolVersionID, error) {
	var v *uint64
	err := d.pool.QueryRow(ctx, `
		SELECT (status::json->>'pending_protocol_version')::bigint FROM server_notifications
		WHERE kind = 'GatewayMigration'
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&v)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dal: reading pending protocol version: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	version := types.ProtocolVersionID(*v)
	return &version, nil
}

func (d *DB) ChainProtocolVersion(ctx context.Context) (types.ProtocolVersionID, error) {
	var v uint64
	err := d.pool.QueryRow(ctx, `SELECT protocol_version FROM l1_batches ORDER BY number DESC LIMIT 1`).Scan(&v)
	if err == pgx.ErrNoRows {
		return types.PreSharedBridge, nil
	}
	if err != nil {
		return 0, fmt.Errorf("dal: reading chain protocol version: %w", err)
	}
	return types.ProtocolVersionID(v), nil
}
