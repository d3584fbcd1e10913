// Command sequencer runs the StateKeeper and EthTxAggregator loops as
// cooperative tasks under a single errgroup (errgroup.WithContext plus
// g.Go per task), the same pairing pattern the teacher uses for its own
// worker fan-outs. The StateKeeper is wired to a Postgres-backed
// StateKeeperIO/OutputHandler pair (zk/sequencer/dal) and a JSON-RPC
// BatchExecutor seam (zk/sequencer/executor) rather than an in-process VM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/aggregator"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/config"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/dal"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/ethsender"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/executor"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/health"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/keeper"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/l1encode"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/logging"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/metrics"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/sealer"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

var L1RPCURLFlag = &cli.StringFlag{Name: "eth-sender.l1-rpc-url", EnvVars: []string{"SEQUENCER_L1_RPC_URL"}}

// l1ClientAdapter narrows *ethclient.Client's ChainID (which returns
// *big.Int, matching go-ethereum's own chain-id convention) down to the
// uint64 the ethsender.L1Client interface expects.
type l1ClientAdapter struct {
	*ethclient.Client
}

func (a *l1ClientAdapter) ChainID(ctx context.Context) (uint64, error) {
	id, err := a.Client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func main() {
	app := cli.NewApp()
	app.Name = "sequencer"
	app.Usage = "zk-rollup sequencer core: StateKeeper + EthTxAggregator"
	app.Flags = append([]cli.Flag{logging.VerbosityFlag, logging.DirPathFlag, logging.DirVerbosityFlag, logging.JSONFlag, L1RPCURLFlag}, config.Flags...)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := logging.Setup("sequencer", cliCtx)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	metrics.Init()

	dbCfg := config.DatabaseFromCLI(cliCtx)
	db, err := dal.Connect(cliCtx.Context, dbCfg.DSN)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rawClient, err := ethclient.DialContext(cliCtx.Context, cliCtx.String(L1RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("dialing L1 RPC: %w", err)
	}
	l1Client := &l1ClientAdapter{Client: rawClient}

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()

	chainProtocolVersion, err := db.ChainProtocolVersion(ctx)
	if err != nil {
		return fmt.Errorf("loading chain protocol version: %w", err)
	}

	aggrCfg := config.AggregatorFromCLI(cliCtx)
	aggr := buildAggregator(aggrCfg, chainProtocolVersion)

	ethSenderCfg := config.EthSenderFromCLI(cliCtx)
	encCfg := config.EncoderFromCLI(cliCtx)
	encoder, err := l1encode.NewEncoder(encCfg.ChainID, chainProtocolVersion, encCfg.SharedBridgeVersion, encCfg.InteropVersion)
	if err != nil {
		return fmt.Errorf("building l1 calldata encoder: %w", err)
	}
	verifierProbe := &ethsender.CallVerifierProbe{Caller: l1Client}
	h := health.New()

	sender := ethsender.New(toEthSenderConfig(ethSenderCfg), l1Client, verifierProbe, db, aggr, db, db, encoder, db, h)

	keeperCfg, err := config.KeeperFromCLI(cliCtx)
	if err != nil {
		return fmt.Errorf("loading state keeper config: %w", err)
	}
	execClient, err := rpc.DialContext(cliCtx.Context, keeperCfg.ExecutorRPCURL)
	if err != nil {
		return fmt.Errorf("dialing executor RPC: %w", err)
	}
	stateKeeper := keeper.New(
		dal.NewKeeperIO(db, keeperCfg.ChainID, keeperCfg.MaxL2BlockTxs, keeperCfg.BatchDeadline),
		executor.NewRPCFactory(execClient),
		dal.NewOutputHandler(db),
		buildSealer(keeperCfg),
		h,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting eth_tx_aggregator task")
		return sender.Run(gCtx, stopCh)
	})
	g.Go(func() error {
		logger.Info("starting state_keeper task")
		return stateKeeper.Run(gCtx, stopCh)
	})

	return g.Wait()
}

func buildSealer(cfg config.KeeperConfig) *sealer.Sealer {
	maxWrites := int(cfg.MaxStorageWrites)
	return sealer.New(
		sealer.GasCriterion{BatchGasLimit: cfg.BatchGasLimit},
		sealer.TxEncodingSizeCriterion{MaxSize: cfg.MaxTxEncodingSize},
		sealer.StorageWritesCriterion{MaxInitialWrites: maxWrites, MaxRepeatedWrites: maxWrites},
		sealer.PubdataCriterion{MaxPubdataBytes: cfg.MaxPubdataBytes},
	)
}

func buildAggregator(cfg config.AggregatorConfig, chainProtocolVersion types.ProtocolVersionID) *aggregator.Aggregator {
	commit := []aggregator.PublishCriteria{
		aggregator.NewBatchCountCriterion(aggregator.OperationCommit, cfg.MaxBatchesPerCommit, lastCommitted),
	}
	prove := []aggregator.PublishCriteria{
		aggregator.NewBatchCountCriterion(aggregator.OperationPublishProofOnchain, cfg.MaxBatchesPerProve, lastProven),
	}
	execute := []aggregator.PublishCriteria{
		aggregator.NewBatchCountCriterion(aggregator.OperationExecute, cfg.MaxBatchesPerExecute, lastExecuted),
	}
	return aggregator.New(types.BaseSystemContracts{}, chainProtocolVersion, aggregator.L1VerifierConfig{}, commit, prove, execute)
}

func lastCommitted(ctx context.Context, storage aggregator.BatchStorage) (uint64, error) {
	return storage.LastCommittedBatch(ctx)
}

func lastProven(ctx context.Context, storage aggregator.BatchStorage) (uint64, error) {
	return storage.LastProvenBatch(ctx)
}

func lastExecuted(ctx context.Context, storage aggregator.BatchStorage) (uint64, error) {
	return storage.LastExecutedBatch(ctx)
}

func toEthSenderConfig(cfg config.EthSenderConfig) ethsender.Config {
	return ethsender.Config{
		OperatorAddr:       cfg.OperatorAddr,
		CustomCommitSender: cfg.CustomCommitSender,
		MulticallAddr:      cfg.MulticallAddr,
		DiamondProxy:       cfg.DiamondProxy,
		ChainTypeManager:   cfg.ChainTypeManager,
		GatewayUpgrade:     cfg.GatewayUpgrade,
		PollPeriod:         cfg.PollPeriod,
		WithEvmEmulator:    cfg.WithEvmEmulator,
	}
}
