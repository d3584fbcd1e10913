// Package ethsender implements the EthTxAggregator loop (C9): the
// cooperative task that runs the multicall prelude, asks the aggregator for
// the next ready operation, encodes it, and persists an outbound EthTx row.
// Modeled on the teacher's L1Syncer.Run lifecycle in zk/syncer/l1_syncer.go
// (atomic started flag, ticker-driven loop, log-and-continue on transient
// error) but synchronous: spec.md describes one task per loop, not an
// internal worker pool.
package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	cdkcommon "github.com/gateway-fm/cdk-erigon-lib/common"
	"github.com/ledgerwatch/log/v3"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/aggregator"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/health"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/l1encode"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/metrics"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/multicall"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// L1Client is the narrow capability surface the loop needs from an L1 node,
// mirroring the teacher's practice of depending on the smallest interface a
// component actually calls rather than a concrete client type.
type L1Client interface {
	multicall.EthCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	ChainID(ctx context.Context) (uint64, error)
}

// VerifierProbe fetches the mandatory SNARK wrapper VK hash and, if present,
// the optional FFLONK wrapper VK hash by probing the verifier contract's
// overloaded verification_key_hash(uint256).
type VerifierProbe interface {
	SnarkWrapperVKHash(ctx context.Context, verifier common.Address) (types.StorageLog, error)
	FFlonkWrapperVKHash(ctx context.Context, verifier common.Address) (*types.StorageLog, error)
}

// GatewayStatusSource reports the current migration state and whether
// aggregation has been manually paused or restricted to prove/execute only.
type GatewayStatusSource interface {
	GatewayMigrationState(ctx context.Context) (types.GatewayMigrationState, error)
	TxAggregationOnlyProveAndExecute(ctx context.Context) (bool, error)
	TxAggregationPaused(ctx context.Context) (bool, error)
	PendingProtocolVersion(ctx context.Context) (*types.ProtocolVersionID, error)
	ChainProtocolVersion(ctx context.Context) (types.ProtocolVersionID, error)
}

// Persister computes the next nonce (NextNonce) and stores the encoded
// operation as a persisted EthTx row associated with the batch range it
// covers (SaveEthTx). The two are separate calls: the nonce is not read
// inside the transaction that stores the row.
type Persister interface {
	NextNonce(ctx context.Context, sender common.Address, isGateway bool, l1Nonce uint64) (uint64, error)
	SaveEthTx(ctx context.Context, tx types.EthTx, firstBatch, lastBatch uint64) error
}

// Config holds the static parameters the loop needs beyond what it reads
// from the chain and the DAL each iteration.
type Config struct {
	OperatorAddr       common.Address
	CustomCommitSender *common.Address
	MulticallAddr      common.Address
	DiamondProxy       common.Address
	ChainTypeManager   common.Address
	GatewayUpgrade     types.ProtocolVersionID
	PollPeriod         time.Duration
	WithEvmEmulator    bool
}

// Aggregator runs the EthTxAggregator loop end to end.
type Aggregator struct {
	cfg       Config
	client    L1Client
	verifier  VerifierProbe
	gateway   GatewayStatusSource
	aggr      *aggregator.Aggregator
	storage   aggregator.BatchStorage
	persister Persister
	encoder   OperationEncoder
	payloads  PayloadSource
	health    *health.Updater

	baseNonce       atomic.Uint64
	baseNonceCustom atomic.Uint64
	slChainID       atomic.Uint64

	started atomic.Bool
	log     log.Logger
}

// OperationEncoder narrows zk/sequencer/l1encode.Encoder to the three
// methods this loop drives.
type OperationEncoder interface {
	EncodeCommit(opVersion types.ProtocolVersionID, lastCommittedBatch l1encode.StoredBatchInfo, batches []l1encode.StoredBatchInfo, pubdataMode types.PubdataSendingMode) ([]byte, error)
	EncodeProve(opVersion types.ProtocolVersionID, args l1encode.ProveArgs) ([]byte, error)
	EncodeExecute(opVersion types.ProtocolVersionID, batches []l1encode.StoredBatchInfo, priorityOpProofs [][]byte, l2ToL1Logs []types.L2ToL1Log, messages []types.L2ToL1Message, messageRoots []common.Hash) ([]byte, error)
}

// PayloadSource resolves the StoredBatchInfo payloads an AggregatedOperation
// range covers, plus whatever extra material (proof bytes, priority-op
// proofs) that operation kind needs to encode.
type PayloadSource interface {
	StoredBatchInfo(ctx context.Context, batch uint64) (l1encode.StoredBatchInfo, error)
	ProofFor(ctx context.Context, firstBatch, lastBatch uint64) ([]byte, error)
	PriorityOpProofs(ctx context.Context, firstBatch, lastBatch uint64) ([][]byte, error)
}

func New(cfg Config, client L1Client, verifier VerifierProbe, gateway GatewayStatusSource, aggr *aggregator.Aggregator, storage aggregator.BatchStorage, persister Persister, encoder OperationEncoder, payloads PayloadSource, h *health.Updater) *Aggregator {
	return &Aggregator{
		cfg: cfg, client: client, verifier: verifier, gateway: gateway,
		aggr: aggr, storage: storage, persister: persister, encoder: encoder, payloads: payloads, health: h,
		log: log.New("component", "eth_tx_aggregator"),
	}
}

// Run starts the loop in the current goroutine, returning only once stop is
// closed or a fatal initialization error occurs. Transient per-iteration
// errors are logged and the loop continues, matching the teacher's
// `log.Error(...); continue`-shaped resilience in its own syncer loop.
func (a *Aggregator) Run(ctx context.Context, stop <-chan struct{}) error {
	if !a.started.CompareAndSwap(false, true) {
		return fmt.Errorf("ethsender: aggregator already running")
	}
	defer a.started.Store(false)

	pendingNonce, err := a.client.PendingNonceAt(ctx, a.cfg.OperatorAddr)
	if err != nil {
		return fmt.Errorf("ethsender: failed reading base nonce: %w", err)
	}
	a.baseNonce.Store(pendingNonce)

	if a.cfg.CustomCommitSender != nil {
		customNonce, err := a.client.NonceAt(ctx, *a.cfg.CustomCommitSender, nil)
		if err != nil {
			return fmt.Errorf("ethsender: failed reading custom commit-sender nonce: %w", err)
		}
		a.baseNonceCustom.Store(customNonce)
	}

	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("ethsender: failed reading sl_chain_id: %w", err)
	}
	a.slChainID.Store(chainID)

	a.log.Info("Starting EthTxAggregator loop", "base_nonce", pendingNonce, "sl_chain_id", chainID)
	defer a.log.Info("Stopping EthTxAggregator loop")

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := a.runIteration(ctx); err != nil {
			a.log.Error("eth_tx_aggregator iteration failed", "err", err)
		}

		select {
		case <-stop:
			return nil
		case <-time.After(a.cfg.PollPeriod):
		}
	}
}

func (a *Aggregator) runIteration(ctx context.Context) error {
	restrictions, err := a.computeRestrictions(ctx)
	if err != nil {
		return fmt.Errorf("computing restrictions: %w", err)
	}

	calls, err := multicall.BuildPrelude(a.cfg.DiamondProxy, a.cfg.ChainTypeManager, a.cfg.WithEvmEmulator)
	if err != nil {
		return fmt.Errorf("building multicall prelude: %w", err)
	}
	chainProtocolVersion, err := a.gateway.ChainProtocolVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading chain protocol version: %w", err)
	}
	preludeResult, err := multicall.Execute(ctx, a.client, a.cfg.MulticallAddr, calls, chainProtocolVersion, nil)
	if err != nil {
		return fmt.Errorf("running multicall prelude: %w", err)
	}

	if _, err := a.verifier.SnarkWrapperVKHash(ctx, preludeResult.Verifier); err != nil {
		return fmt.Errorf("fetching mandatory snark wrapper vk hash: %w", err)
	}
	if _, err := a.verifier.FFlonkWrapperVKHash(ctx, preludeResult.Verifier); err != nil {
		return fmt.Errorf("probing fflonk wrapper vk hash: %w", err)
	}

	op, err := a.aggr.GetNextReadyOperation(ctx, a.storage, restrictions)
	if err != nil {
		return fmt.Errorf("selecting next ready operation: %w", err)
	}
	if op == nil {
		return nil
	}

	opVersion, err := a.storage.BatchProtocolVersion(ctx, op.FirstBatch)
	if err != nil {
		return fmt.Errorf("reading operation protocol version: %w", err)
	}
	calldata, err := a.encodeOperation(ctx, op, opVersion)
	if err != nil {
		return fmt.Errorf("encoding operation: %w", err)
	}

	sender := a.cfg.OperatorAddr
	l1Nonce := a.baseNonce.Load()
	if op.Kind == aggregator.OperationCommit && a.cfg.CustomCommitSender != nil {
		sender = *a.cfg.CustomCommitSender
		l1Nonce = a.baseNonceCustom.Load()
	}
	nonce, err := a.persister.NextNonce(ctx, sender, false, l1Nonce)
	if err != nil {
		return fmt.Errorf("computing next nonce: %w", err)
	}

	senderCdk := cdkcommon.Address(sender)
	ethTx := types.EthTx{
		Nonce:         nonce,
		Calldata:      calldata,
		OperationType: op.Kind.String(),
		ContractAddr:  cdkcommon.Address(a.cfg.DiamondProxy),
		PredictedGas:  predictedGas(op),
		SenderAddr:    &senderCdk,
		ChainID:       a.slChainID.Load(),
	}
	if err := a.persister.SaveEthTx(ctx, ethTx, op.FirstBatch, op.LastBatch); err != nil {
		return fmt.Errorf("persisting eth_tx: %w", err)
	}

	metrics.RecordAggregatedOperation(op.Kind.String())
	a.health.Advance(types.IoCursor{L1Batch: op.LastBatch})
	return nil
}

// encodeOperation resolves the StoredBatchInfo payloads an operation's
// range covers and dispatches to the matching encoder method.
func (a *Aggregator) encodeOperation(ctx context.Context, op *aggregator.AggregatedOperation, opVersion types.ProtocolVersionID) ([]byte, error) {
	batches := make([]l1encode.StoredBatchInfo, 0, op.LastBatch-op.FirstBatch+1)
	for n := op.FirstBatch; n <= op.LastBatch; n++ {
		b, err := a.payloads.StoredBatchInfo(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("resolving batch %d payload: %w", n, err)
		}
		batches = append(batches, b)
	}

	switch op.Kind {
	case aggregator.OperationCommit:
		var prev l1encode.StoredBatchInfo
		if op.FirstBatch > 0 {
			var err error
			prev, err = a.payloads.StoredBatchInfo(ctx, op.FirstBatch-1)
			if err != nil {
				return nil, fmt.Errorf("resolving last committed batch payload: %w", err)
			}
		}
		return a.encoder.EncodeCommit(opVersion, prev, batches, op.PubdataSendingMode)
	case aggregator.OperationPublishProofOnchain:
		proof, err := a.payloads.ProofFor(ctx, op.FirstBatch, op.LastBatch)
		if err != nil {
			return nil, fmt.Errorf("resolving proof: %w", err)
		}
		prev, err := a.payloads.StoredBatchInfo(ctx, op.FirstBatch-1)
		if err != nil {
			return nil, fmt.Errorf("resolving prev batch payload: %w", err)
		}
		return a.encoder.EncodeProve(opVersion, l1encode.ProveArgs{PrevBatch: prev, Batches: batches, Proof: proof})
	case aggregator.OperationExecute:
		proofs, err := a.payloads.PriorityOpProofs(ctx, op.FirstBatch, op.LastBatch)
		if err != nil {
			return nil, fmt.Errorf("resolving priority op proofs: %w", err)
		}
		return a.encoder.EncodeExecute(opVersion, batches, proofs, nil, nil, nil)
	default:
		return nil, fmt.Errorf("ethsender: unknown operation kind %v", op.Kind)
	}
}

// computeRestrictions mirrors spec.md 4.6 step 4 verbatim.
func (a *Aggregator) computeRestrictions(ctx context.Context) (aggregator.OperationSkippingRestrictions, error) {
	paused, err := a.gateway.TxAggregationPaused(ctx)
	if err != nil {
		return aggregator.OperationSkippingRestrictions{}, err
	}
	if paused {
		reason := "tx aggregation is paused"
		return aggregator.OperationSkippingRestrictions{
			CommitRestriction:  &reason,
			ProveRestriction:   &reason,
			ExecuteRestriction: &reason,
		}, nil
	}

	state, err := a.gateway.GatewayMigrationState(ctx)
	if err != nil {
		return aggregator.OperationSkippingRestrictions{}, err
	}
	onlyProveAndExecute, err := a.gateway.TxAggregationOnlyProveAndExecute(ctx)
	if err != nil {
		return aggregator.OperationSkippingRestrictions{}, err
	}

	var restrictions aggregator.OperationSkippingRestrictions
	switch {
	case state == types.GatewayMigrationStarted:
		reason := "Gateway migration started"
		restrictions.CommitRestriction = &reason
	case onlyProveAndExecute:
		reason := "tx_aggregation_only_prove_and_execute=true"
		restrictions.CommitRestriction = &reason
	}

	pendingVersion, err := a.gateway.PendingProtocolVersion(ctx)
	if err != nil {
		return aggregator.OperationSkippingRestrictions{}, err
	}
	chainVersion, err := a.gateway.ChainProtocolVersion(ctx)
	if err != nil {
		return aggregator.OperationSkippingRestrictions{}, err
	}
	if pendingVersion != nil && *pendingVersion >= a.cfg.GatewayUpgrade && chainVersion < a.cfg.GatewayUpgrade {
		reason := "there is a pending gateway upgrade"
		restrictions.ExecuteRestriction = &reason
	}

	return restrictions, nil
}

// predictedGas implements spec.md 4.6's predicted-gas heuristic: set only
// for a non-gateway Execute or a non-gateway Validium-mode Commit.
func predictedGas(op *aggregator.AggregatedOperation) *uint64 {
	switch op.Kind {
	case aggregator.OperationExecute:
		g := totalExecuteGasAmount
		return &g
	case aggregator.OperationCommit:
		if op.PubdataSendingMode == types.PubdataSendingModeCalldata {
			g := totalValidiumCommitGasAmount
			return &g
		}
	}
	return nil
}

// Gas constants are conservative per-operation ceilings used only as a
// predicted-gas hint for the broadcaster; actual gas estimation is out of
// scope here.
const (
	totalExecuteGasAmount        uint64 = 2_000_000
	totalValidiumCommitGasAmount uint64 = 1_000_000
)
