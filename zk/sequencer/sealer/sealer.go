// Package sealer implements the ConditionalSealer (C4): a pure,
// multi-criterion decision for whether the in-flight batch/block must be
// sealed. Each criterion is a small, deterministic function of aggregated
// counters; the combiner takes the maximum per the SealResolution join order.
package sealer

import (
	"fmt"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// Resolution is the sum type NoSeal | IncludeAndSeal | ExcludeAndSeal | Unexecutable(reason).
// It forms a monoid under Join: Unexecutable > ExcludeAndSeal > IncludeAndSeal > NoSeal,
// with NoSeal as identity. Multiple criteria are combined by maximum.
type Resolution struct {
	rank   int
	reason types.UnexecutableReason
	source string
}

const (
	rankNoSeal = iota
	rankIncludeAndSeal
	rankExcludeAndSeal
	rankUnexecutable
)

var NoSeal = Resolution{rank: rankNoSeal}

func IncludeAndSeal(source string) Resolution {
	return Resolution{rank: rankIncludeAndSeal, source: source}
}

func ExcludeAndSeal(source string) Resolution {
	return Resolution{rank: rankExcludeAndSeal, source: source}
}

func Unexecutable(reason types.UnexecutableReason) Resolution {
	return Resolution{rank: rankUnexecutable, reason: reason, source: "unexecutable"}
}

func (r Resolution) IsNoSeal() bool         { return r.rank == rankNoSeal }
func (r Resolution) IsIncludeAndSeal() bool { return r.rank == rankIncludeAndSeal }
func (r Resolution) IsExcludeAndSeal() bool { return r.rank == rankExcludeAndSeal }
func (r Resolution) IsUnexecutable() bool   { return r.rank == rankUnexecutable }

// Reason returns the unexecutable reason; only meaningful when IsUnexecutable().
func (r Resolution) Reason() types.UnexecutableReason { return r.reason }

// Source names the criterion that produced this resolution, for logging.
func (r Resolution) Source() string { return r.source }

// ShouldSeal reports whether this resolution requires the batch to close now.
// NoSeal does not; IncludeAndSeal, ExcludeAndSeal and Unexecutable do.
func (r Resolution) ShouldSeal() bool { return r.rank >= rankIncludeAndSeal }

// Join combines two resolutions, keeping the higher-ranked one. Associative
// and commutative; NoSeal is identity — this is invariant 4 of the spec.
func Join(a, b Resolution) Resolution {
	if b.rank > a.rank {
		return b
	}
	return a
}

func (r Resolution) String() string {
	switch r.rank {
	case rankNoSeal:
		return "NoSeal"
	case rankIncludeAndSeal:
		return fmt.Sprintf("IncludeAndSeal(%s)", r.source)
	case rankExcludeAndSeal:
		return fmt.Sprintf("ExcludeAndSeal(%s)", r.source)
	default:
		return fmt.Sprintf("Unexecutable(%s)", r.reason)
	}
}

// SealData is the per-tx or per-block (cumulative) resource snapshot a
// criterion reasons over.
type SealData struct {
	ExecutionMetrics    types.ExecutionMetrics
	CumulativeSize      int
	WritesMetrics       types.WritesMetrics
	GasRemaining        uint64
}

// Criterion is one seal policy (gas limit, tx-size cap, writes cap, pubdata
// cap, ...). Implementations must be deterministic functions
// of their inputs, per spec.md 4.2.
type Criterion interface {
	Name() string
	ShouldSeal(block, tx SealData, txCount, l1TxCount int) Resolution
}

// ConditionalSealer is the capability StateKeeper consults after every
// successfully executed transaction.
type ConditionalSealer interface {
	ShouldSealL1Batch(batchNumber uint64, batchTimestampMs int64, txCount, l1TxCount int, block, tx SealData, protocolVersion types.ProtocolVersionID) Resolution
}

// Sealer composes a fixed set of criteria, known at construction time —
// no need for dynamic dispatch beyond the one-level Criterion interface.
type Sealer struct {
	criteria []Criterion
}

func New(criteria ...Criterion) *Sealer {
	return &Sealer{criteria: criteria}
}

func (s *Sealer) ShouldSealL1Batch(batchNumber uint64, batchTimestampMs int64, txCount, l1TxCount int, block, tx SealData, _ types.ProtocolVersionID) Resolution {
	result := NoSeal
	for _, c := range s.criteria {
		result = Join(result, c.ShouldSeal(block, tx, txCount, l1TxCount))
	}
	return result
}
