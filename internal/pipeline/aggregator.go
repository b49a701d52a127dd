package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// Aggregator recomputes group completion from the collection records.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorClock overrides the clock used for completedAt.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(st store.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{store: st, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate scans every record of the group and marks the group complete
// when all of them are collected. It reports whether every record was
// collected at scan time. A group with no records is never complete, and a
// stored completion is never reverted.
func (a *Aggregator) Aggregate(ctx context.Context, groupID string) (bool, error) {
	m := metrics.New(metrics.Namespace).Dimension("Stage", "aggregate").Property("groupId", groupID)
	defer m.Flush()

	records, err := a.store.ListCollectionRecords(ctx, groupID)
	if err != nil {
		m.Count(metrics.AggregatorErrors)
		return false, fmt.Errorf("list collection records for %s: %w", groupID, err)
	}
	if len(records) == 0 {
		log.Debug().Str("groupId", groupID).Msg("Group has no collection records")
		return false, nil
	}

	collected := 0
	for _, r := range records {
		if r.IsCollected {
			collected++
		}
	}
	if collected < len(records) {
		log.Debug().Str("groupId", groupID).Int("collected", collected).Int("total", len(records)).Msg("Group not complete")
		return false, nil
	}

	changed, err := a.store.MarkGroupCompleted(ctx, groupID, a.now())
	if err != nil {
		m.Count(metrics.AggregatorErrors)
		return false, fmt.Errorf("mark group %s completed: %w", groupID, err)
	}
	if changed {
		m.Count(metrics.GroupsCompleted)
		log.Info().Str("groupId", groupID).Int("items", len(records)).Msg("Group completed")
	}
	return true, nil
}
