package dal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ethTxColumnForOperation must reject unknown operation names rather than
// silently writing to a wrong column; like senderBytes below, it needs no
// live database to exercise.
func TestEthTxColumnForOperation(t *testing.T) {
	cases := []struct {
		op     string
		column string
	}{
		{"Commit", "eth_commit_tx_id"},
		{"PublishProofOnchain", "eth_prove_tx_id"},
		{"Execute", "eth_execute_tx_id"},
	}
	for _, c := range cases {
		got, err := ethTxColumnForOperation(c.op)
		require.NoError(t, err)
		assert.Equal(t, c.column, got)
	}

	_, err := ethTxColumnForOperation("Bogus")
	assert.Error(t, err)
}

func TestSenderBytes_NilIsNil(t *testing.T) {
	assert.Nil(t, senderBytes(nil))
}
