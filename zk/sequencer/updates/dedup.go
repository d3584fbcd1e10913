package updates

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gateway-fm/cdk-erigon-lib/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// StorageWritesDeduplicator collapses repeated writes to the same storage
// slot so seal criteria reason over post-dedup counts. It is an incremental
// set: each apply adds any slot not already seen to "initial" writes and
// counts already-seen slots as "repeated" writes.
type StorageWritesDeduplicator struct {
	seen mapset.Set[common.Hash]
}

func NewStorageWritesDeduplicator() *StorageWritesDeduplicator {
	return &StorageWritesDeduplicator{seen: mapset.NewThreadUnsafeSet[common.Hash]()}
}

// Apply folds logs into the dedup set and returns the resulting metrics
// delta (initial vs. repeated writes introduced by this batch of logs).
func (d *StorageWritesDeduplicator) Apply(logs []types.StorageLog) types.WritesMetrics {
	var m types.WritesMetrics
	for _, l := range logs {
		if d.seen.Contains(l.Key) {
			m.RepeatedStorageWrites++
		} else {
			m.InitialStorageWrites++
			d.seen.Add(l.Key)
		}
	}
	return m
}

// ApplyAndRollback computes what Apply would return without mutating the
// accumulator. Used by the keeper to price a candidate transaction's effect
// on the seal criteria before deciding to actually include it — invariant 3
// of spec.md requires this to leave the deduplicator byte-identical.
func (d *StorageWritesDeduplicator) ApplyAndRollback(logs []types.StorageLog) types.WritesMetrics {
	added := make([]common.Hash, 0, len(logs))
	var m types.WritesMetrics
	for _, l := range logs {
		if d.seen.Contains(l.Key) {
			m.RepeatedStorageWrites++
			continue
		}
		m.InitialStorageWrites++
		d.seen.Add(l.Key)
		added = append(added, l.Key)
	}
	for _, k := range added {
		d.seen.Remove(k)
	}
	return m
}

// ApplyOnEmptyState computes what a fresh deduplicator (no prior writes)
// would report for logs, without touching the real accumulator at all.
// Nothing in the sequencer core calls it; SealDataForCandidate prices a
// candidate with ApplyAndRollback instead.
func ApplyOnEmptyState(logs []types.StorageLog) types.WritesMetrics {
	fresh := NewStorageWritesDeduplicator()
	return fresh.Apply(logs)
}
