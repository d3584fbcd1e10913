// Package health exposes a minimal liveness/readiness surface for the
// sequencer core, following the atomic-flag pattern the teacher's sync
// stages use to report progress to the RPC health endpoint.
package health

import (
	"sync/atomic"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// Updater tracks whether the StateKeeper has completed its startup
// protocol and the most recent cursor reported to it, through SetReady or
// Advance. A process health endpoint reads Status() without synchronizing
// with the keeper.
type Updater struct {
	ready atomic.Bool
	batch atomic.Uint64
	block atomic.Uint64
}

func New() *Updater { return &Updater{} }

// SetReady marks the keeper as having finished Initialize and records the
// cursor it resumed from.
func (u *Updater) SetReady(cursor types.IoCursor) {
	u.batch.Store(cursor.L1Batch)
	u.block.Store(cursor.NextL2Block)
	u.ready.Store(true)
}

// Advance updates the cursor without affecting readiness. The
// EthTxAggregator calls it with the last batch of each operation it saves;
// the StateKeeper does not call it.
func (u *Updater) Advance(cursor types.IoCursor) {
	u.batch.Store(cursor.L1Batch)
	u.block.Store(cursor.NextL2Block)
}

type Status struct {
	Ready       bool
	L1Batch     uint64
	NextL2Block uint64
}

func (u *Updater) Status() Status {
	return Status{
		Ready:       u.ready.Load(),
		L1Batch:     u.batch.Load(),
		NextL2Block: u.block.Load(),
	}
}
