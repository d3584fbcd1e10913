package sealer

import "github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"

var (
	reasonTooMuchGas   = types.UnexecutableReason{Halt: "transaction requires more gas than the batch limit"}
	reasonTxTooBig     = types.UnexecutableReason{Halt: "transaction encoding exceeds the batch size limit"}
	reasonPubdataLimit = types.UnexecutableReason{Halt: "transaction publishes more pubdata than the batch limit"}
)
