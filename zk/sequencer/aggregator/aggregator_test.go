package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

type fakeStorage struct {
	lastCommitted, lastProven, lastExecuted uint64
	sealedCount                             uint64
}

func (s *fakeStorage) LastCommittedBatch(ctx context.Context) (uint64, error) { return s.lastCommitted, nil }
func (s *fakeStorage) LastProvenBatch(ctx context.Context) (uint64, error)    { return s.lastProven, nil }
func (s *fakeStorage) LastExecutedBatch(ctx context.Context) (uint64, error)  { return s.lastExecuted, nil }
func (s *fakeStorage) SealedBatchCount(ctx context.Context) (uint64, error)   { return s.sealedCount, nil }
func (s *fakeStorage) BatchProtocolVersion(ctx context.Context, batch uint64) (types.ProtocolVersionID, error) {
	return types.PreSharedBridge, nil
}

var _ BatchStorage = (*fakeStorage)(nil)

func newTestAggregator() *Aggregator {
	commit := []PublishCriteria{NewBatchCountCriterion(OperationCommit, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastCommittedBatch(ctx)
	})}
	return New(types.BaseSystemContracts{}, types.PreSharedBridge, L1VerifierConfig{}, commit, nil, nil)
}

// S5: gateway status flips to Started — Commit must not be returned, but
// the absence of Prove/Execute criteria here means no operation is ready
// regardless, so this asserts specifically that Commit is the one skipped.
func TestAggregator_CommitRestrictionBlocksCommit(t *testing.T) {
	a := newTestAggregator()
	storage := &fakeStorage{lastCommitted: 5, sealedCount: 8}
	reason := "Gateway migration started"

	op, err := a.GetNextReadyOperation(context.Background(), storage, OperationSkippingRestrictions{CommitRestriction: &reason})
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestAggregator_CommitReadyWithoutRestriction(t *testing.T) {
	a := newTestAggregator()
	storage := &fakeStorage{lastCommitted: 5, sealedCount: 8}

	op, err := a.GetNextReadyOperation(context.Background(), storage, OperationSkippingRestrictions{})
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, OperationCommit, op.Kind)
	assert.Equal(t, uint64(6), op.FirstBatch)
	assert.Equal(t, uint64(8), op.LastBatch)
}

// invariant 8: a restricted action kind is never returned even when an
// eligible range exists for it, regardless of the other kinds' state.
func TestAggregator_RestrictionSoundnessAcrossAllKinds(t *testing.T) {
	commit := []PublishCriteria{NewBatchCountCriterion(OperationCommit, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastCommittedBatch(ctx)
	})}
	prove := []PublishCriteria{NewBatchCountCriterion(OperationPublishProofOnchain, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastProvenBatch(ctx)
	})}
	execute := []PublishCriteria{NewBatchCountCriterion(OperationExecute, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastExecutedBatch(ctx)
	})}
	a := New(types.BaseSystemContracts{}, types.PreSharedBridge, L1VerifierConfig{}, commit, prove, execute)
	storage := &fakeStorage{lastCommitted: 5, lastProven: 3, lastExecuted: 1, sealedCount: 8}

	commitReason, proveReason, executeReason := "commit blocked", "prove blocked", "execute blocked"
	op, err := a.GetNextReadyOperation(context.Background(), storage, OperationSkippingRestrictions{
		CommitRestriction:  &commitReason,
		ProveRestriction:   &proveReason,
		ExecuteRestriction: &executeReason,
	})
	require.NoError(t, err)
	assert.Nil(t, op)
}

// Execute outranks Prove outranks Commit when all three are eligible.
func TestAggregator_ExecutePreferredOverProveAndCommit(t *testing.T) {
	commit := []PublishCriteria{NewBatchCountCriterion(OperationCommit, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastCommittedBatch(ctx)
	})}
	prove := []PublishCriteria{NewBatchCountCriterion(OperationPublishProofOnchain, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastProvenBatch(ctx)
	})}
	execute := []PublishCriteria{NewBatchCountCriterion(OperationExecute, 10, func(ctx context.Context, s BatchStorage) (uint64, error) {
		return s.LastExecutedBatch(ctx)
	})}
	a := New(types.BaseSystemContracts{}, types.PreSharedBridge, L1VerifierConfig{}, commit, prove, execute)
	storage := &fakeStorage{lastCommitted: 5, lastProven: 3, lastExecuted: 1, sealedCount: 8}

	op, err := a.GetNextReadyOperation(context.Background(), storage, OperationSkippingRestrictions{})
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, OperationExecute, op.Kind)
}
