// Package types holds the data model shared across the sequencer core:
// cursors, batch/block parameters, transactions and execution results.
// None of these types know how to persist themselves; that is the DAL's job.
package types

import (
	"time"

	"github.com/gateway-fm/cdk-erigon-lib/common"
)

// L2ChainID identifies the rollup's own chain.
type L2ChainID uint64

// SLChainID identifies the settlement layer (L1, or gateway once migrated).
type SLChainID uint64

// ProtocolVersionID is a packed semver tag governing VM semantics and ABI shape.
type ProtocolVersionID uint64

// PreSharedBridge is the genesis sentinel protocol version used before the
// shared-bridge upgrade; batch #1 on this version carries no upgrade tx,
// while batch #1 on any later version loads one.
const PreSharedBridge ProtocolVersionID = 0

// IoCursor is the monotonically advancing position of the sequencer within
// the batch/block sequence. Produced by StateKeeperIO on initialize and
// after every seal.
type IoCursor struct {
	L1Batch             uint64
	NextL2Block         uint64
	PrevL2BlockHash     common.Hash
	PrevL2BlockTimestamp uint64
}

// FeeInput carries the L1 gas price / pubdata price pair a batch was opened with.
type FeeInput struct {
	L1GasPrice      uint64
	FairPubdataPrice uint64
}

// L1BatchParams are the parameters needed to open a new L1 batch.
type L1BatchParams struct {
	Timestamp       uint64
	ProtocolVersion ProtocolVersionID
	FeeInput        FeeInput
	FirstL2BlockParams L2BlockParams
}

// L2BlockParams are the parameters needed to open a mid-batch L2 block.
type L2BlockParams struct {
	Timestamp      uint64
	VirtualBlocks  uint32
}

// BaseSystemContracts is the set of bootloader / default-AA hashes active
// for a given protocol version.
type BaseSystemContracts struct {
	BootloaderHash    common.Hash
	DefaultAAHash     common.Hash
	EvmEmulatorHash   *common.Hash
}

// ProtocolUpgradeTx is a synthetic transaction that must be the first tx of
// a batch whenever the protocol version changes mid-stream.
type ProtocolUpgradeTx struct {
	Tx              Transaction
	ToVersion       ProtocolVersionID
}

// Transaction is the minimal view of a pending transaction the sequencer core needs.
type Transaction struct {
	Hash           common.Hash
	IsL1           bool
	IsUpgradeTx    bool
	EncodingLen    int
	ReceivedAt     time.Time
}

// L2ToL1Log and L2ToL1Message are accumulated by executed transactions and
// surfaced in the sealed batch for L1 consumption.
type L2ToL1Log struct {
	Key   common.Hash
	Value common.Hash
}

type L2ToL1Message []byte

// L2BlockExecutionData is the stored replay record for one already-executed
// L2 block within an unsealed batch, as returned by StateKeeperIO on resume.
type L2BlockExecutionData struct {
	Number        uint64
	Timestamp     uint64
	VirtualBlocks uint32
	Txs           []Transaction
}

// PendingBatchData is returned by StateKeeperIO.Initialize when there is an
// unsealed batch left over from a prior run that must be replayed.
type PendingBatchData struct {
	L1BatchEnv     L1BatchEnv
	SystemEnv      SystemEnv
	PubdataParams  PubdataParams
	PendingL2Blocks []L2BlockExecutionData
}

// L1BatchEnv is the VM-facing environment for an L1 batch.
type L1BatchEnv struct {
	Number          uint64
	Timestamp       uint64
	FeeInput        FeeInput
	FirstL2BlockParams L2BlockParams
}

// SystemEnv is the VM-facing environment shared by all blocks of a batch.
type SystemEnv struct {
	ProtocolVersion       ProtocolVersionID
	BaseSystemContracts   BaseSystemContracts
	ChainID               L2ChainID
}

// PubdataParams controls how pubdata is shaped for the active DA mode.
type PubdataParams struct {
	L2DAValidatorAddress common.Address
	PubdataType           PubdataSendingMode
}

// PubdataSendingMode distinguishes calldata-DA from blob-DA.
type PubdataSendingMode int

const (
	PubdataSendingModeCalldata PubdataSendingMode = iota
	PubdataSendingModeBlobs
)

// L2BlockEnv is passed to BatchExecutor.StartNextL2Block.
type L2BlockEnv struct {
	Number        uint64
	Timestamp     uint64
	VirtualBlocks uint32
	PrevBlockHash common.Hash
}

// UnexecutableReason explains why a transaction could not be included at all.
type UnexecutableReason struct {
	Halt             string
	NotEnoughGasProvided bool
}

func (r UnexecutableReason) String() string {
	if r.NotEnoughGasProvided {
		return "not enough gas provided"
	}
	return r.Halt
}

// ExecutionMetrics is the per-transaction / per-block resource tally used by
// seal criteria (gas, pubdata, circuit-ish counters collapse here as plain fields).
type ExecutionMetrics struct {
	GasUsed           uint64
	PubdataPublished  uint64
	L2ToL1LogsCount   int
	ContractsDeployed int
}

func (m ExecutionMetrics) Add(o ExecutionMetrics) ExecutionMetrics {
	return ExecutionMetrics{
		GasUsed:           m.GasUsed + o.GasUsed,
		PubdataPublished:  m.PubdataPublished + o.PubdataPublished,
		L2ToL1LogsCount:   m.L2ToL1LogsCount + o.L2ToL1LogsCount,
		ContractsDeployed: m.ContractsDeployed + o.ContractsDeployed,
	}
}

// WritesMetrics is the post-dedup storage write tally.
type WritesMetrics struct {
	InitialStorageWrites int
	RepeatedStorageWrites int
}

func (m WritesMetrics) Add(o WritesMetrics) WritesMetrics {
	return WritesMetrics{
		InitialStorageWrites:  m.InitialStorageWrites + o.InitialStorageWrites,
		RepeatedStorageWrites: m.RepeatedStorageWrites + o.RepeatedStorageWrites,
	}
}

// StorageLog is one storage write observed while executing a transaction.
type StorageLog struct {
	Key   common.Hash
	Value common.Hash
}

// CompressedBytecode is a (hash, compressed bytes) pair produced by a
// successful transaction that deployed new code.
type CompressedBytecode struct {
	Hash       common.Hash
	Compressed []byte
}

// FinishedBatch is the artifact returned by BatchExecutor.FinishBatch.
type FinishedBatch struct {
	StateHash       common.Hash
	PubdataInput    []byte
	L2ToL1Logs      []L2ToL1Log
	L2ToL1Messages  []L2ToL1Message
}

// GatewayMigrationState tracks the chain's settlement-layer migration,
// derived only from the newest local server_notifications row of kind
// GatewayMigration (dal.DB.GatewayMigrationState); the on-chain settlement
// layer is not read.
type GatewayMigrationState int

const (
	GatewayNotMigrating GatewayMigrationState = iota
	GatewayMigrationStarted
	GatewayMigrationFinalized
)

func (s GatewayMigrationState) String() string {
	switch s {
	case GatewayMigrationStarted:
		return "Started"
	case GatewayMigrationFinalized:
		return "Finalized"
	default:
		return "Not"
	}
}

// EthTx is the outbound L1 transaction persisted by the EthTxAggregator
// loop before a broadcaster picks it up; broadcast/signing itself is out
// of scope.
type EthTx struct {
	ID            uint64
	Nonce         uint64
	Calldata      []byte
	OperationType string
	ContractAddr  common.Address
	PredictedGas  *uint64
	SenderAddr    *common.Address
	BlobSidecar   []byte
	ChainID       uint64
	IsGateway     bool
}

