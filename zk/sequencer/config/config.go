// Package config collects the per-component configuration structs the
// cmd wiring builds from urfave/cli flags, the same division the teacher
// uses between ethconfig.Config (process-wide) and each stage's own
// *Cfg struct (SequenceBlockCfg in zk/stages/stage_sequence_execute_utils.go).
package config

import (
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// KeeperConfig configures the StateKeeper loop and its ConditionalSealer
// criteria.
type KeeperConfig struct {
	BatchGasLimit        uint64
	MaxTxEncodingSize     datasize.ByteSize
	MaxStorageWrites      uint64
	MaxPubdataBytes       uint64
	BatchDeadline         time.Duration
	L2BlockDeadline       time.Duration
	MaxL2BlockTxs         int
	ChainID               types.L2ChainID
	ExecutorRPCURL        string
}

// AggregatorConfig configures the Aggregator's per-kind publish criteria.
type AggregatorConfig struct {
	MaxBatchesPerCommit  uint64
	MaxBatchesPerProve   uint64
	MaxBatchesPerExecute uint64
	CommitDeadline       time.Duration
	ProveDeadline        time.Duration
	ExecuteDeadline      time.Duration
}

// EthSenderConfig configures the EthTxAggregator loop.
type EthSenderConfig struct {
	OperatorAddr       common.Address
	CustomCommitSender *common.Address
	MulticallAddr      common.Address
	DiamondProxy       common.Address
	ChainTypeManager   common.Address
	GatewayUpgrade     types.ProtocolVersionID
	PollPeriod         time.Duration
	WithEvmEmulator    bool
}

// EncoderConfig configures the l1encode.Encoder's protocol-version
// boundaries: the chain it submits for and the op-version thresholds that
// select between the pre/post shared-bridge and pre/post interop encodings.
type EncoderConfig struct {
	ChainID             uint64
	SharedBridgeVersion types.ProtocolVersionID
	InteropVersion      types.ProtocolVersionID
}

// DatabaseConfig configures the DAL's Postgres connection.
type DatabaseConfig struct {
	DSN string
}

var (
	BatchGasLimitFlag = &cli.Uint64Flag{Name: "sequencer.batch.gas-limit", Value: 30_000_000}
	MaxTxEncodingSizeFlag = &cli.StringFlag{Name: "sequencer.batch.max-tx-encoding-size", Value: "128KB"}
	MaxStorageWritesFlag  = &cli.Uint64Flag{Name: "sequencer.batch.max-storage-writes", Value: 8000}
	MaxPubdataBytesFlag   = &cli.Uint64Flag{Name: "sequencer.batch.max-pubdata-bytes", Value: 120_000}
	BatchDeadlineFlag     = &cli.DurationFlag{Name: "sequencer.batch.deadline", Value: 2 * time.Second}
	L2BlockDeadlineFlag   = &cli.DurationFlag{Name: "sequencer.block.deadline", Value: 1 * time.Second}
	MaxL2BlockTxsFlag     = &cli.IntFlag{Name: "sequencer.block.max-txs", Value: 200}
	L2ChainIDFlag         = &cli.Uint64Flag{Name: "sequencer.l2-chain-id", EnvVars: []string{"SEQUENCER_L2_CHAIN_ID"}}
	ExecutorRPCURLFlag    = &cli.StringFlag{Name: "sequencer.executor-rpc-url", EnvVars: []string{"SEQUENCER_EXECUTOR_RPC_URL"}}

	MaxBatchesPerCommitFlag  = &cli.Uint64Flag{Name: "aggregator.commit.max-batches", Value: 10}
	MaxBatchesPerProveFlag   = &cli.Uint64Flag{Name: "aggregator.prove.max-batches", Value: 10}
	MaxBatchesPerExecuteFlag = &cli.Uint64Flag{Name: "aggregator.execute.max-batches", Value: 10}
	CommitDeadlineFlag       = &cli.DurationFlag{Name: "aggregator.commit.deadline", Value: 1 * time.Minute}
	ProveDeadlineFlag        = &cli.DurationFlag{Name: "aggregator.prove.deadline", Value: 1 * time.Minute}
	ExecuteDeadlineFlag      = &cli.DurationFlag{Name: "aggregator.execute.deadline", Value: 1 * time.Minute}

	OperatorAddrFlag     = &cli.StringFlag{Name: "eth-sender.operator-addr"}
	CustomCommitSenderFlag = &cli.StringFlag{Name: "eth-sender.custom-commit-sender"}
	MulticallAddrFlag    = &cli.StringFlag{Name: "eth-sender.multicall-addr"}
	DiamondProxyFlag     = &cli.StringFlag{Name: "eth-sender.diamond-proxy"}
	ChainTypeManagerFlag = &cli.StringFlag{Name: "eth-sender.chain-type-manager"}
	GatewayUpgradeFlag   = &cli.Uint64Flag{Name: "eth-sender.gateway-upgrade-version"}
	PollPeriodFlag       = &cli.DurationFlag{Name: "eth-sender.poll-period", Value: 5 * time.Second}
	WithEvmEmulatorFlag  = &cli.BoolFlag{Name: "eth-sender.with-evm-emulator"}

	ChainIDFlag             = &cli.Uint64Flag{Name: "eth-sender.chain-id"}
	SharedBridgeVersionFlag = &cli.Uint64Flag{Name: "eth-sender.shared-bridge-version"}
	InteropVersionFlag      = &cli.Uint64Flag{Name: "eth-sender.interop-version"}

	DatabaseDSNFlag = &cli.StringFlag{Name: "database.dsn", EnvVars: []string{"SEQUENCER_DATABASE_DSN"}}
)

// Flags is the full flag set the cmd package registers on the urfave app.
var Flags = []cli.Flag{
	BatchGasLimitFlag, MaxTxEncodingSizeFlag, MaxStorageWritesFlag, MaxPubdataBytesFlag, BatchDeadlineFlag, L2BlockDeadlineFlag,
	MaxL2BlockTxsFlag, L2ChainIDFlag, ExecutorRPCURLFlag,
	MaxBatchesPerCommitFlag, MaxBatchesPerProveFlag, MaxBatchesPerExecuteFlag, CommitDeadlineFlag, ProveDeadlineFlag, ExecuteDeadlineFlag,
	OperatorAddrFlag, CustomCommitSenderFlag, MulticallAddrFlag, DiamondProxyFlag, ChainTypeManagerFlag, GatewayUpgradeFlag, PollPeriodFlag, WithEvmEmulatorFlag,
	ChainIDFlag, SharedBridgeVersionFlag, InteropVersionFlag,
	DatabaseDSNFlag,
}

func KeeperFromCLI(ctx *cli.Context) (KeeperConfig, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(ctx.String(MaxTxEncodingSizeFlag.Name))); err != nil {
		return KeeperConfig{}, err
	}
	return KeeperConfig{
		BatchGasLimit:     ctx.Uint64(BatchGasLimitFlag.Name),
		MaxTxEncodingSize: size,
		MaxStorageWrites:  ctx.Uint64(MaxStorageWritesFlag.Name),
		MaxPubdataBytes:   ctx.Uint64(MaxPubdataBytesFlag.Name),
		BatchDeadline:     ctx.Duration(BatchDeadlineFlag.Name),
		L2BlockDeadline:   ctx.Duration(L2BlockDeadlineFlag.Name),
		MaxL2BlockTxs:     ctx.Int(MaxL2BlockTxsFlag.Name),
		ChainID:           types.L2ChainID(ctx.Uint64(L2ChainIDFlag.Name)),
		ExecutorRPCURL:    ctx.String(ExecutorRPCURLFlag.Name),
	}, nil
}

func AggregatorFromCLI(ctx *cli.Context) AggregatorConfig {
	return AggregatorConfig{
		MaxBatchesPerCommit:  ctx.Uint64(MaxBatchesPerCommitFlag.Name),
		MaxBatchesPerProve:   ctx.Uint64(MaxBatchesPerProveFlag.Name),
		MaxBatchesPerExecute: ctx.Uint64(MaxBatchesPerExecuteFlag.Name),
		CommitDeadline:       ctx.Duration(CommitDeadlineFlag.Name),
		ProveDeadline:        ctx.Duration(ProveDeadlineFlag.Name),
		ExecuteDeadline:      ctx.Duration(ExecuteDeadlineFlag.Name),
	}
}

func EthSenderFromCLI(ctx *cli.Context) EthSenderConfig {
	cfg := EthSenderConfig{
		OperatorAddr:     common.HexToAddress(ctx.String(OperatorAddrFlag.Name)),
		MulticallAddr:    common.HexToAddress(ctx.String(MulticallAddrFlag.Name)),
		DiamondProxy:     common.HexToAddress(ctx.String(DiamondProxyFlag.Name)),
		ChainTypeManager: common.HexToAddress(ctx.String(ChainTypeManagerFlag.Name)),
		GatewayUpgrade:   types.ProtocolVersionID(ctx.Uint64(GatewayUpgradeFlag.Name)),
		PollPeriod:       ctx.Duration(PollPeriodFlag.Name),
		WithEvmEmulator:  ctx.Bool(WithEvmEmulatorFlag.Name),
	}
	if raw := ctx.String(CustomCommitSenderFlag.Name); raw != "" {
		addr := common.HexToAddress(raw)
		cfg.CustomCommitSender = &addr
	}
	return cfg
}

func EncoderFromCLI(ctx *cli.Context) EncoderConfig {
	return EncoderConfig{
		ChainID:             ctx.Uint64(ChainIDFlag.Name),
		SharedBridgeVersion: types.ProtocolVersionID(ctx.Uint64(SharedBridgeVersionFlag.Name)),
		InteropVersion:      types.ProtocolVersionID(ctx.Uint64(InteropVersionFlag.Name)),
	}
}

func DatabaseFromCLI(ctx *cli.Context) DatabaseConfig {
	return DatabaseConfig{DSN: ctx.String(DatabaseDSNFlag.Name)}
}
