package sealer

import "github.com/c2h5oh/datasize"

// GasCriterion seals once the cumulative gas used by the batch would exceed
// the configured limit for a single transaction's worth of headroom.
type GasCriterion struct {
	BatchGasLimit uint64
}

func (c GasCriterion) Name() string { return "gas" }

func (c GasCriterion) ShouldSeal(block, tx SealData, _, _ int) Resolution {
	if tx.ExecutionMetrics.GasUsed > c.BatchGasLimit {
		return Unexecutable(reasonTooMuchGas)
	}
	if block.ExecutionMetrics.GasUsed+tx.ExecutionMetrics.GasUsed > c.BatchGasLimit {
		return ExcludeAndSeal(c.Name())
	}
	return NoSeal
}

// TxEncodingSizeCriterion bounds the total encoded size of all transactions
// in the batch, so that batch calldata stays within a reasonable envelope.
type TxEncodingSizeCriterion struct {
	MaxSize datasize.ByteSize
}

func (c TxEncodingSizeCriterion) Name() string { return "tx_encoding_size" }

func (c TxEncodingSizeCriterion) ShouldSeal(block, tx SealData, _, _ int) Resolution {
	max := int(c.MaxSize.Bytes())
	if tx.CumulativeSize > max {
		return Unexecutable(reasonTxTooBig)
	}
	if block.CumulativeSize+tx.CumulativeSize > max {
		return ExcludeAndSeal(c.Name())
	}
	return NoSeal
}

// StorageWritesCriterion bounds the post-dedup count of initial + repeated
// storage writes, which is what bounds on-chain pubdata for a batch.
type StorageWritesCriterion struct {
	MaxInitialWrites  int
	MaxRepeatedWrites int
}

func (c StorageWritesCriterion) Name() string { return "storage_writes" }

func (c StorageWritesCriterion) ShouldSeal(block, tx SealData, _, _ int) Resolution {
	totalInitial := block.WritesMetrics.InitialStorageWrites + tx.WritesMetrics.InitialStorageWrites
	totalRepeated := block.WritesMetrics.RepeatedStorageWrites + tx.WritesMetrics.RepeatedStorageWrites
	if totalInitial > c.MaxInitialWrites || totalRepeated > c.MaxRepeatedWrites {
		return ExcludeAndSeal(c.Name())
	}
	return NoSeal
}

// PubdataCriterion bounds the pubdata published by the batch so it fits the
// active DA mode's envelope (a single blob, or the configured calldata cap).
type PubdataCriterion struct {
	MaxPubdataBytes uint64
}

func (c PubdataCriterion) Name() string { return "pubdata" }

func (c PubdataCriterion) ShouldSeal(block, tx SealData, _, _ int) Resolution {
	if tx.ExecutionMetrics.PubdataPublished > c.MaxPubdataBytes {
		return Unexecutable(reasonPubdataLimit)
	}
	if block.ExecutionMetrics.PubdataPublished+tx.ExecutionMetrics.PubdataPublished > c.MaxPubdataBytes {
		return ExcludeAndSeal(c.Name())
	}
	return NoSeal
}

// The time deadline criterion (spec.md 4.2) is deliberately not a Criterion
// here: it is IO-driven rather than a function of executed-tx counters, and
// is evaluated by the keeper directly via ShouldSealL1BatchUnconditionally
// (spec.md 4.1 step 2), not folded into the per-tx Join chain.
