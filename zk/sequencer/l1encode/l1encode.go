// Package l1encode implements the calldata encoder (C7): turning an
// AggregatedOperation into the exact calldata the EthTxAggregator submits
// to L1. BlobEncoder.BuildSidecar builds the KZG blob sidecar for blob-DA
// commits; the EthTxAggregator does not call it. Grounded on the
// teacher's go-ethereum accounts/abi usage and on go-kzg-4844 for the blob
// commitment/proof machinery.
package l1encode

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/aggregator"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// SupportedEncodingVersion is the constant version byte prefixed onto the
// ABI-encoded payload of both post-shared-bridge Execute encodings
// (branches ii and iii of EncodeExecute).
const SupportedEncodingVersion byte = 1

// BytesPerBlob is the EIP-4844 blob size pubdata is chunked into for the
// blob-DA sidecar.
const BytesPerBlob = 131072

// StoredBatchInfo is the on-chain-facing summary of one committed batch,
// the payload unit every encoding variant is built from.
type StoredBatchInfo struct {
	BatchNumber     uint64
	BatchHash       common.Hash
	IndexRepeatedStorageChanges uint64
	NumberOfLayer1Txs uint64
	PriorityOperationsHash common.Hash
	L2LogsTreeRoot  common.Hash
	Timestamp       uint64
	CommitmentHash  common.Hash
}

// ProveArgs is the argument pair (prevBatchInfo, scheduler/fflonk proof)
// assembled for a Prove operation. IsVerifierPreFFlonk is carried along but
// does not change the encoded calldata.
type ProveArgs struct {
	PrevBatch      StoredBatchInfo
	Batches        []StoredBatchInfo
	Proof          []byte
	IsVerifierPreFFlonk bool
}

// Encoder bifurcates by (op protocol version, chain protocol version): the
// same AggregatedOperation can be shaped differently depending on whether
// the chain has crossed the shared-bridge or interop upgrade boundary.
type Encoder struct {
	chainID              *big.Int
	chainProtocolVersion types.ProtocolVersionID
	sharedBridgeVersion  types.ProtocolVersionID
	interopVersion       types.ProtocolVersionID

	commitABI  abi.ABI
	proveABI   abi.ABI
	executeABI abi.ABI
}

func NewEncoder(chainID uint64, chainProtocolVersion, sharedBridgeVersion, interopVersion types.ProtocolVersionID) (*Encoder, error) {
	commitABI, err := abi.JSON(strings.NewReader(commitABIJSON))
	if err != nil {
		return nil, fmt.Errorf("l1encode: invalid commit ABI: %w", err)
	}
	proveABI, err := abi.JSON(strings.NewReader(proveABIJSON))
	if err != nil {
		return nil, fmt.Errorf("l1encode: invalid prove ABI: %w", err)
	}
	executeABI, err := abi.JSON(strings.NewReader(executeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("l1encode: invalid execute ABI: %w", err)
	}
	return &Encoder{
		chainID:              new(big.Int).SetUint64(chainID),
		chainProtocolVersion: chainProtocolVersion,
		sharedBridgeVersion:  sharedBridgeVersion,
		interopVersion:       interopVersion,
		commitABI:            commitABI,
		proveABI:             proveABI,
		executeABI:           executeABI,
	}, nil
}

func (e *Encoder) isPreSharedBridge(opVersion types.ProtocolVersionID) bool {
	return opVersion < e.sharedBridgeVersion
}

func (e *Encoder) isPreInterop(opVersion types.ProtocolVersionID) bool {
	return opVersion < e.interopVersion
}

// EncodeCommit builds commitBatches calldata: (chain_id, last_committed_batch,
// batches, pubdata_da). Selects the pre/post shared-bridge method by the
// operation's own protocol version, not the chain's current one.
func (e *Encoder) EncodeCommit(opVersion types.ProtocolVersionID, lastCommittedBatch StoredBatchInfo, batches []StoredBatchInfo, pubdataMode types.PubdataSendingMode) ([]byte, error) {
	method := "commitBatchesSharedBridge"
	if !e.isPreSharedBridge(opVersion) {
		method = "commitBatchesSharedBridgeGateway"
	}
	return e.commitABI.Pack(method, e.chainID, lastCommittedBatch.BatchNumber, toTokens(batches), byte(pubdataMode))
}

// EncodeProve builds proveBatches calldata: (chain_id, prove_args). The
// verifier-family bit only changes how the proof bytes were produced
// upstream; the calldata shape is otherwise identical pre/post bridge.
func (e *Encoder) EncodeProve(opVersion types.ProtocolVersionID, args ProveArgs) ([]byte, error) {
	method := "proveBatchesSharedBridge"
	if !e.isPreSharedBridge(opVersion) {
		method = "proveBatchesSharedBridgeGateway"
	}
	return e.proveABI.Pack(method, e.chainID, toToken(args.PrevBatch), toTokens(args.Batches), args.Proof)
}

// EncodeExecute builds the ExecuteBatches encoding, itself branching three
// ways depending on (op protocol version, chain protocol version):
//
//	(i)   pre-gateway && chain pre-gateway   -> plain StoredBatchInfo[] tokens
//	(ii)  pre-interop && chain pre-interop   -> {first,last,bytes(version ++ abi(batches, proofs))}
//	(iii) otherwise                          -> {first,last,bytes(version ++ abi(batches, proofs, logs, messages, roots))}
func (e *Encoder) EncodeExecute(opVersion types.ProtocolVersionID, batches []StoredBatchInfo, priorityOpProofs [][]byte, l2ToL1Logs []types.L2ToL1Log, messages []types.L2ToL1Message, messageRoots []common.Hash) ([]byte, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("l1encode: execute requires at least one batch")
	}
	first, last := batches[0].BatchNumber, batches[len(batches)-1].BatchNumber

	if e.isPreSharedBridge(opVersion) && e.isPreSharedBridge(e.chainProtocolVersion) {
		return e.executeABI.Pack("executeBatches", e.chainID, toTokens(batches))
	}

	var payload []byte
	payload = append(payload, SupportedEncodingVersion)
	if e.isPreInterop(opVersion) && e.isPreInterop(e.chainProtocolVersion) {
		inner, err := e.executeABI.Methods["executeBatchesPayload"].Inputs.Pack(toTokens(batches), priorityOpProofs)
		if err != nil {
			return nil, err
		}
		payload = append(payload, inner...)
	} else {
		inner, err := e.executeABI.Methods["executeBatchesPayloadV2"].Inputs.Pack(toTokens(batches), priorityOpProofs, toLogTokens(l2ToL1Logs), messages, messageRoots)
		if err != nil {
			return nil, err
		}
		payload = append(payload, inner...)
	}
	return e.executeABI.Pack("executeBatchesSharedBridgeGateway", e.chainID, first, last, payload)
}

func toToken(b StoredBatchInfo) storedBatchInfoToken {
	return storedBatchInfoToken{
		BatchNumber:                 b.BatchNumber,
		BatchHash:                   b.BatchHash,
		IndexRepeatedStorageChanges: b.IndexRepeatedStorageChanges,
		NumberOfLayer1Txs:           b.NumberOfLayer1Txs,
		PriorityOperationsHash:      b.PriorityOperationsHash,
		L2LogsTreeRoot:              b.L2LogsTreeRoot,
		Timestamp:                   b.Timestamp,
		CommitmentHash:              b.CommitmentHash,
	}
}

func toTokens(batches []StoredBatchInfo) []storedBatchInfoToken {
	tokens := make([]storedBatchInfoToken, len(batches))
	for i, b := range batches {
		tokens[i] = toToken(b)
	}
	return tokens
}

// toLogTokens also bridges cdk-erigon-lib's common.Hash (used throughout
// the sequencer's own types) to go-ethereum's common.Hash (needed to pack
// against the accounts/abi package); both are plain [32]byte arrays.
func toLogTokens(logs []types.L2ToL1Log) []l2ToL1LogToken {
	tokens := make([]l2ToL1LogToken, len(logs))
	for i, l := range logs {
		tokens[i] = l2ToL1LogToken{
			Key:   common.Hash(l.Key),
			Value: common.Hash(l.Value),
		}
	}
	return tokens
}

type storedBatchInfoToken struct {
	BatchNumber                 uint64
	BatchHash                   common.Hash
	IndexRepeatedStorageChanges uint64
	NumberOfLayer1Txs           uint64
	PriorityOperationsHash      common.Hash
	L2LogsTreeRoot              common.Hash
	Timestamp                   uint64
	CommitmentHash              common.Hash `abi:"commitment"`
}

type l2ToL1LogToken struct {
	Key   common.Hash
	Value common.Hash
}

// Ensure aggregator's operation kinds stay the vocabulary callers switch on.
var _ = aggregator.OperationCommit
