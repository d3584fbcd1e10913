package l1encode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

func testBatch(n uint64) StoredBatchInfo {
	return StoredBatchInfo{
		BatchNumber:                 n,
		BatchHash:                   common.BigToHash(new(big.Int).SetUint64(n)),
		IndexRepeatedStorageChanges: n * 2,
		NumberOfLayer1Txs:           1,
		PriorityOperationsHash:      common.Hash{},
		L2LogsTreeRoot:              common.Hash{},
		Timestamp:                   1000 + n,
		CommitmentHash:              common.Hash{},
	}
}

// invariant 6: encoding then decoding a batch of StoredBatchInfo through the
// ABI yields both batches, in order, with their batch numbers unchanged.
func TestEncoder_CommitRoundTrip(t *testing.T) {
	enc, err := NewEncoder(1, types.PreSharedBridge, types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	batches := []StoredBatchInfo{testBatch(10), testBatch(11)}
	data, err := enc.EncodeCommit(types.PreSharedBridge, testBatch(9), batches, types.PubdataSendingModeCalldata)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	method, err := enc.commitABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "commitBatchesSharedBridge", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)

	decoded, ok := args[2].([]struct {
		BatchNumber                 uint64   `json:"batchNumber"`
		BatchHash                   [32]byte `json:"batchHash"`
		IndexRepeatedStorageChanges uint64   `json:"indexRepeatedStorageChanges"`
		NumberOfLayer1Txs           uint64   `json:"numberOfLayer1Txs"`
		PriorityOperationsHash      [32]byte `json:"priorityOperationsHash"`
		L2LogsTreeRoot              [32]byte `json:"l2LogsTreeRoot"`
		Timestamp                   uint64   `json:"timestamp"`
		Commitment                  [32]byte `json:"commitment"`
	})
	require.True(t, ok)
	require.Len(t, decoded, 2)
	assert.Equal(t, uint64(10), decoded[0].BatchNumber)
	assert.Equal(t, uint64(11), decoded[1].BatchNumber)
}

// S6: a commit built pre-shared-bridge for a chain still pre-shared-bridge
// must pick the non-gateway method, never the gateway variant.
func TestEncoder_CommitSelectsPreBridgeMethod(t *testing.T) {
	enc, err := NewEncoder(5, types.PreSharedBridge, types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	data, err := enc.EncodeCommit(types.PreSharedBridge, testBatch(1), []StoredBatchInfo{testBatch(2)}, types.PubdataSendingModeCalldata)
	require.NoError(t, err)

	method, err := enc.commitABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "commitBatchesSharedBridge", method.Name)
}

func TestEncoder_CommitSelectsGatewayMethodPostBridge(t *testing.T) {
	enc, err := NewEncoder(5, types.ProtocolVersionID(25), types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	data, err := enc.EncodeCommit(types.ProtocolVersionID(25), testBatch(1), []StoredBatchInfo{testBatch(2)}, types.PubdataSendingModeBlobs)
	require.NoError(t, err)

	method, err := enc.commitABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "commitBatchesSharedBridgeGateway", method.Name)
}

func TestEncoder_ExecutePlainPreSharedBridge(t *testing.T) {
	enc, err := NewEncoder(1, types.PreSharedBridge, types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	data, err := enc.EncodeExecute(types.PreSharedBridge, []StoredBatchInfo{testBatch(1)}, nil, nil, nil, nil)
	require.NoError(t, err)

	method, err := enc.executeABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeBatches", method.Name)
}

func TestEncoder_ExecuteWrapsWithVersionByteAfterBridge(t *testing.T) {
	enc, err := NewEncoder(1, types.ProtocolVersionID(25), types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	data, err := enc.EncodeExecute(types.ProtocolVersionID(25), []StoredBatchInfo{testBatch(1)}, [][]byte{{0xaa}}, nil, nil, nil)
	require.NoError(t, err)

	method, err := enc.executeABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeBatchesSharedBridgeGateway", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	payload, ok := args[3].([]byte)
	require.True(t, ok)
	require.NotEmpty(t, payload)
	assert.Equal(t, SupportedEncodingVersion, payload[0])
}

func TestEncoder_ExecuteRejectsEmptyBatchList(t *testing.T) {
	enc, err := NewEncoder(1, types.PreSharedBridge, types.ProtocolVersionID(25), types.ProtocolVersionID(26))
	require.NoError(t, err)

	_, err = enc.EncodeExecute(types.PreSharedBridge, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

// invariant 7: versioned_hash = sha256(commitment) with the first byte
// forced to 0x01.
func TestVersionedHash_ForcesVersionByte(t *testing.T) {
	var commitment [48]byte
	for i := range commitment {
		commitment[i] = byte(i)
	}
	h := versionedHash(commitment)
	assert.Equal(t, byte(BlobVersionHashVersion), h[0])
}

func TestChunkPubdata_SplitsAndPadsLastChunk(t *testing.T) {
	data := make([]byte, BytesPerBlob+10)
	for i := range data {
		data[i] = 0x42
	}
	chunks := chunkPubdata(data)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], BytesPerBlob)
	assert.Len(t, chunks[1], BytesPerBlob)
	assert.Equal(t, byte(0x42), chunks[1][9])
	assert.Equal(t, byte(0), chunks[1][10])
}

func TestChunkPubdata_EmptyInputProducesNoChunks(t *testing.T) {
	assert.Nil(t, chunkPubdata(nil))
}
