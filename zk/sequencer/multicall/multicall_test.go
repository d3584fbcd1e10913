package multicall

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

func TestDecodeHash(t *testing.T) {
	want := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")
	got, err := decodeHash(want.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = decodeHash([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeAddress(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000001234")
	padded := make([]byte, 32)
	copy(padded[12:], addr.Bytes())

	got, err := decodeAddress(padded)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = decodeAddress([]byte{1})
	assert.Error(t, err)
}

func TestDecodeProtocolVersion_RawMinor(t *testing.T) {
	data := make([]byte, 32)
	data[31] = 42 // 42 < PackedSemverMinorMask

	v, err := decodeProtocolVersion(data)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolVersionID(42), v)
}

func TestDecodeProtocolVersion_PackedSemver(t *testing.T) {
	// major=0, minor=25, patch=0 packed as minor * PackedSemverMinorMask
	data := make([]byte, 32)
	packed := PackedSemverMinorMask * 25
	b := new(bigIntHelper).bytes(packed)
	copy(data[32-len(b):], b)

	v, err := decodeProtocolVersion(data)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolVersionID(25), v)
}

func TestResolveTimelock_UsesStmWhenOnStmVersion(t *testing.T) {
	stmTimelock := common.HexToAddress("0x1111111111111111111111111111111111111111")
	override := common.HexToAddress("0x2222222222222222222222222222222222222222")

	got := resolveTimelock(types.ProtocolVersionID(5), types.ProtocolVersionID(5), stmTimelock, &override)
	assert.Equal(t, stmTimelock, got)
}

func TestResolveTimelock_UsesOverrideAfterUpgrade(t *testing.T) {
	stmTimelock := common.HexToAddress("0x1111111111111111111111111111111111111111")
	override := common.HexToAddress("0x2222222222222222222222222222222222222222")

	got := resolveTimelock(types.ProtocolVersionID(6), types.ProtocolVersionID(5), stmTimelock, &override)
	assert.Equal(t, override, got)
}

func TestResolveTimelock_FallsBackToStmWithoutOverride(t *testing.T) {
	stmTimelock := common.HexToAddress("0x1111111111111111111111111111111111111111")

	got := resolveTimelock(types.ProtocolVersionID(6), types.ProtocolVersionID(5), stmTimelock, nil)
	assert.Equal(t, stmTimelock, got)
}

type bigIntHelper struct{}

func (bigIntHelper) bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	// trim leading zeros, mirroring big.Int.Bytes()
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}
