package ethsender

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/aggregator"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

type fakeGateway struct {
	state               types.GatewayMigrationState
	onlyProveAndExecute bool
	paused              bool
	pendingVersion      *types.ProtocolVersionID
	chainVersion        types.ProtocolVersionID
}

func (g *fakeGateway) GatewayMigrationState(ctx context.Context) (types.GatewayMigrationState, error) {
	return g.state, nil
}
func (g *fakeGateway) TxAggregationOnlyProveAndExecute(ctx context.Context) (bool, error) {
	return g.onlyProveAndExecute, nil
}
func (g *fakeGateway) TxAggregationPaused(ctx context.Context) (bool, error) { return g.paused, nil }
func (g *fakeGateway) PendingProtocolVersion(ctx context.Context) (*types.ProtocolVersionID, error) {
	return g.pendingVersion, nil
}
func (g *fakeGateway) ChainProtocolVersion(ctx context.Context) (types.ProtocolVersionID, error) {
	return g.chainVersion, nil
}

var _ GatewayStatusSource = (*fakeGateway)(nil)

func agg() *Aggregator {
	return &Aggregator{cfg: Config{GatewayUpgrade: types.ProtocolVersionID(30)}}
}

func TestComputeRestrictions_PausedBlocksEverything(t *testing.T) {
	a := agg()
	a.gateway = &fakeGateway{paused: true}

	r, err := a.computeRestrictions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CommitRestriction)
	require.NotNil(t, r.ProveRestriction)
	require.NotNil(t, r.ExecuteRestriction)
	assert.Equal(t, "tx aggregation is paused", *r.CommitRestriction)
}

// S5: gateway status Started blocks Commit only.
func TestComputeRestrictions_MigrationStartedBlocksCommitOnly(t *testing.T) {
	a := agg()
	a.gateway = &fakeGateway{state: types.GatewayMigrationStarted}

	r, err := a.computeRestrictions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CommitRestriction)
	assert.Equal(t, "Gateway migration started", *r.CommitRestriction)
	assert.Nil(t, r.ProveRestriction)
	assert.Nil(t, r.ExecuteRestriction)
}

func TestComputeRestrictions_OnlyProveAndExecuteFlag(t *testing.T) {
	a := agg()
	a.gateway = &fakeGateway{onlyProveAndExecute: true}

	r, err := a.computeRestrictions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.CommitRestriction)
	assert.Equal(t, "tx_aggregation_only_prove_and_execute=true", *r.CommitRestriction)
}

func TestComputeRestrictions_PendingGatewayUpgradeBlocksExecute(t *testing.T) {
	a := agg()
	pending := types.ProtocolVersionID(31)
	a.gateway = &fakeGateway{pendingVersion: &pending, chainVersion: types.ProtocolVersionID(29)}

	r, err := a.computeRestrictions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.ExecuteRestriction)
	assert.Nil(t, r.CommitRestriction)
}

func TestComputeRestrictions_ChainAlreadyPastUpgradeLiftsExecuteRestriction(t *testing.T) {
	a := agg()
	pending := types.ProtocolVersionID(31)
	a.gateway = &fakeGateway{pendingVersion: &pending, chainVersion: types.ProtocolVersionID(31)}

	r, err := a.computeRestrictions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r.ExecuteRestriction)
}

func TestPredictedGas_NonGatewayExecuteIsSet(t *testing.T) {
	op := &aggregator.AggregatedOperation{Kind: aggregator.OperationExecute}
	g := predictedGas(op)
	require.NotNil(t, g)
	assert.Equal(t, totalExecuteGasAmount, *g)
}

func TestPredictedGas_ValidiumModeCommitIsSet(t *testing.T) {
	op := &aggregator.AggregatedOperation{Kind: aggregator.OperationCommit, PubdataSendingMode: types.PubdataSendingModeCalldata}
	g := predictedGas(op)
	require.NotNil(t, g)
	assert.Equal(t, totalValidiumCommitGasAmount, *g)
}

func TestPredictedGas_BlobModeCommitIsNil(t *testing.T) {
	op := &aggregator.AggregatedOperation{Kind: aggregator.OperationCommit, PubdataSendingMode: types.PubdataSendingModeBlobs}
	assert.Nil(t, predictedGas(op))
}

func TestPredictedGas_ProveIsNil(t *testing.T) {
	op := &aggregator.AggregatedOperation{Kind: aggregator.OperationPublishProofOnchain}
	assert.Nil(t, predictedGas(op))
}

func TestConfig_CustomCommitSenderAddressable(t *testing.T) {
	addr := common.HexToAddress("0x1234")
	cfg := Config{CustomCommitSender: &addr}
	require.NotNil(t, cfg.CustomCommitSender)
	assert.Equal(t, addr, *cfg.CustomCommitSender)
}
