// Package aggregator implements the Aggregator (C6): deciding which sealed
// L1 batches are ready to be grouped into a Commit, PublishProofOnchain or
// Execute operation, subject to per-action restrictions.
package aggregator

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/log/v3"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// OperationKind discriminates the AggregatedOperation sum type.
type OperationKind int

const (
	OperationCommit OperationKind = iota
	OperationPublishProofOnchain
	OperationExecute
)

func (k OperationKind) String() string {
	switch k {
	case OperationCommit:
		return "Commit"
	case OperationPublishProofOnchain:
		return "PublishProofOnchain"
	case OperationExecute:
		return "Execute"
	default:
		return "unknown"
	}
}

// AggregatedOperation is the sum type
// Commit(last_committed_batch, batches, pubdata_sending_mode) |
// PublishProofOnchain(op) | Execute(op). Each variant carries the
// contiguous batch range it represents.
type AggregatedOperation struct {
	Kind OperationKind

	// FirstBatch/LastBatch bound the contiguous range this operation covers.
	FirstBatch uint64
	LastBatch  uint64

	// valid when Kind == OperationCommit
	LastCommittedBatch uint64
	PubdataSendingMode types.PubdataSendingMode

	// valid when Kind == OperationPublishProofOnchain
	ProofBatches []uint64
}

// OperationSkippingRestrictions forbids individual action types for a
// logged reason (spec.md 4.3). A nil field means the action is permitted.
type OperationSkippingRestrictions struct {
	CommitRestriction  *string
	ProveRestriction   *string
	ExecuteRestriction *string
}

// L1VerifierConfig names the verification keys the chain currently expects.
type L1VerifierConfig struct {
	SnarkWrapperVKHash       types.StorageLog
	FFlonkSnarkWrapperVKHash *types.StorageLog
}

// PublishCriteria decides the longest eligible contiguous batch range for
// one operation kind (gas budget, batch count, wall clock), grounded on the
// same multi-criterion style as sealer.Criterion.
type PublishCriteria interface {
	Kind() OperationKind
	// EligibleRange returns the contiguous range [first,last] ready to
	// publish, or ok=false if nothing qualifies yet.
	EligibleRange(ctx context.Context, storage BatchStorage) (first, last uint64, ok bool, err error)
}

// BatchStorage is the read surface the Aggregator needs from the DAL: the
// sealed-but-not-yet-aggregated batch ledger and per-batch readiness facts.
type BatchStorage interface {
	LastCommittedBatch(ctx context.Context) (uint64, error)
	LastProvenBatch(ctx context.Context) (uint64, error)
	LastExecutedBatch(ctx context.Context) (uint64, error)
	SealedBatchCount(ctx context.Context) (uint64, error)
	BatchProtocolVersion(ctx context.Context, batch uint64) (types.ProtocolVersionID, error)
}

// Aggregator chooses, at most once per call, which operation is ready —
// preferring Execute > Prove > Commit, the order in which their outputs
// become irreversible on L1.
type Aggregator struct {
	baseSystemContractsHashes types.BaseSystemContracts
	chainProtocolVersion      types.ProtocolVersionID
	verifierConfig            L1VerifierConfig

	commitCriteria []PublishCriteria
	proveCriteria  []PublishCriteria
	executeCriteria []PublishCriteria

	log log.Logger
}

func New(sysContracts types.BaseSystemContracts, chainProtocolVersion types.ProtocolVersionID, verifier L1VerifierConfig, commit, prove, execute []PublishCriteria) *Aggregator {
	return &Aggregator{
		baseSystemContractsHashes: sysContracts,
		chainProtocolVersion:      chainProtocolVersion,
		verifierConfig:            verifier,
		commitCriteria:            commit,
		proveCriteria:             prove,
		executeCriteria:           execute,
		log:                       log.New("component", "aggregator"),
	}
}

// GetNextReadyOperation returns at most one operation. Execute is tried
// first, then Prove, then Commit; the first kind with both no active
// restriction and a non-empty eligible range wins.
func (a *Aggregator) GetNextReadyOperation(ctx context.Context, storage BatchStorage, restrictions OperationSkippingRestrictions) (*AggregatedOperation, error) {
	if op, err := a.tryExecute(ctx, storage, restrictions); err != nil || op != nil {
		return op, err
	}
	if op, err := a.tryProve(ctx, storage, restrictions); err != nil || op != nil {
		return op, err
	}
	return a.tryCommit(ctx, storage, restrictions)
}

func (a *Aggregator) tryExecute(ctx context.Context, storage BatchStorage, restrictions OperationSkippingRestrictions) (*AggregatedOperation, error) {
	if restrictions.ExecuteRestriction != nil {
		a.log.Debug(fmt.Sprintf("Execute operation skipped: %s", *restrictions.ExecuteRestriction))
		return nil, nil
	}
	first, last, ok, err := longestEligibleRange(ctx, storage, a.executeCriteria)
	if err != nil || !ok {
		return nil, err
	}
	return &AggregatedOperation{Kind: OperationExecute, FirstBatch: first, LastBatch: last}, nil
}

func (a *Aggregator) tryProve(ctx context.Context, storage BatchStorage, restrictions OperationSkippingRestrictions) (*AggregatedOperation, error) {
	if restrictions.ProveRestriction != nil {
		a.log.Debug(fmt.Sprintf("Prove operation skipped: %s", *restrictions.ProveRestriction))
		return nil, nil
	}
	first, last, ok, err := longestEligibleRange(ctx, storage, a.proveCriteria)
	if err != nil || !ok {
		return nil, err
	}
	batches := make([]uint64, 0, last-first+1)
	for n := first; n <= last; n++ {
		batches = append(batches, n)
	}
	return &AggregatedOperation{Kind: OperationPublishProofOnchain, FirstBatch: first, LastBatch: last, ProofBatches: batches}, nil
}

func (a *Aggregator) tryCommit(ctx context.Context, storage BatchStorage, restrictions OperationSkippingRestrictions) (*AggregatedOperation, error) {
	if restrictions.CommitRestriction != nil {
		a.log.Debug(fmt.Sprintf("Commit operation skipped: %s", *restrictions.CommitRestriction))
		return nil, nil
	}
	first, last, ok, err := longestEligibleRange(ctx, storage, a.commitCriteria)
	if err != nil || !ok {
		return nil, err
	}
	lastCommitted, err := storage.LastCommittedBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading last committed batch: %w", err)
	}
	return &AggregatedOperation{
		Kind:               OperationCommit,
		FirstBatch:         first,
		LastBatch:          last,
		LastCommittedBatch: lastCommitted,
		PubdataSendingMode: types.PubdataSendingModeCalldata,
	}, nil
}

// longestEligibleRange folds every criterion's answer and returns the
// smallest range common to all of them (the most conservative bound), since
// an operation can only be as large as every criterion agrees is safe.
func longestEligibleRange(ctx context.Context, storage BatchStorage, criteria []PublishCriteria) (first, last uint64, ok bool, err error) {
	if len(criteria) == 0 {
		return 0, 0, false, nil
	}
	for i, c := range criteria {
		f, l, cok, cerr := c.EligibleRange(ctx, storage)
		if cerr != nil {
			return 0, 0, false, fmt.Errorf("criterion failed: %w", cerr)
		}
		if !cok {
			return 0, 0, false, nil
		}
		if i == 0 {
			first, last, ok = f, l, true
			continue
		}
		if f > first {
			first = f
		}
		if l < last {
			last = l
		}
	}
	if first > last {
		return 0, 0, false, nil
	}
	return first, last, ok, nil
}
