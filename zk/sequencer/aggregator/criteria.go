package aggregator

import (
	"context"
	"time"
)

// lastDoneFunc reads the last batch number already advanced past for a given
// operation kind (last committed / proven / executed).
type lastDoneFunc func(ctx context.Context, storage BatchStorage) (uint64, error)

// BatchCountCriterion bounds how many sealed batches a single operation may
// cover in one go, independent of what is otherwise ready.
type BatchCountCriterion struct {
	kind       OperationKind
	maxBatches uint64
	lastDone   lastDoneFunc
}

func NewBatchCountCriterion(kind OperationKind, maxBatches uint64, lastDone lastDoneFunc) *BatchCountCriterion {
	return &BatchCountCriterion{kind: kind, maxBatches: maxBatches, lastDone: lastDone}
}

func (c *BatchCountCriterion) Kind() OperationKind { return c.kind }

func (c *BatchCountCriterion) EligibleRange(ctx context.Context, storage BatchStorage) (first, last uint64, ok bool, err error) {
	lastDone, err := c.lastDone(ctx, storage)
	if err != nil {
		return 0, 0, false, err
	}
	sealedCount, err := storage.SealedBatchCount(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	if sealedCount <= lastDone {
		return 0, 0, false, nil
	}
	first = lastDone + 1
	last = sealedCount
	if last-first+1 > c.maxBatches {
		last = first + c.maxBatches - 1
	}
	return first, last, true, nil
}

// DeadlineCriterion makes every ready batch eligible once the oldest of them
// has waited at least the configured deadline, and none before that.
// Combined with other criteria it can only narrow the eligible range, never
// widen it.
type DeadlineCriterion struct {
	kind           OperationKind
	deadline       time.Duration
	lastDone       lastDoneFunc
	oldestSealedAt func(ctx context.Context, storage BatchStorage, batch uint64) (time.Time, error)
	now            func() time.Time
}

func NewDeadlineCriterion(kind OperationKind, deadline time.Duration, lastDone lastDoneFunc, oldestSealedAt func(ctx context.Context, storage BatchStorage, batch uint64) (time.Time, error)) *DeadlineCriterion {
	return &DeadlineCriterion{
		kind:           kind,
		deadline:       deadline,
		lastDone:       lastDone,
		oldestSealedAt: oldestSealedAt,
		now:            time.Now,
	}
}

func (c *DeadlineCriterion) Kind() OperationKind { return c.kind }

func (c *DeadlineCriterion) EligibleRange(ctx context.Context, storage BatchStorage) (first, last uint64, ok bool, err error) {
	lastDone, err := c.lastDone(ctx, storage)
	if err != nil {
		return 0, 0, false, err
	}
	sealedCount, err := storage.SealedBatchCount(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	if sealedCount <= lastDone {
		return 0, 0, false, nil
	}
	oldestSealedAt, err := c.oldestSealedAt(ctx, storage, lastDone+1)
	if err != nil {
		return 0, 0, false, err
	}
	if c.now().Sub(oldestSealedAt) < c.deadline {
		return 0, 0, false, nil
	}
	return lastDone + 1, sealedCount, true, nil
}
