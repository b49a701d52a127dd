package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// Updater applies VerificationEvents to collection records.
type Updater struct {
	store       store.Store
	trigger     AggregateTrigger
	now         func() time.Time
	rejectOlder bool
}

// UpdaterOption customizes an Updater.
type UpdaterOption func(*Updater)

// WithUpdaterClock overrides the clock used for processedAt.
func WithUpdaterClock(now func() time.Time) UpdaterOption {
	return func(u *Updater) { u.now = now }
}

// WithStaleEventGuard makes the updater refuse events older than the one
// already applied to a record. Off by default: the last processed event wins.
func WithStaleEventGuard(enabled bool) UpdaterOption {
	return func(u *Updater) { u.rejectOlder = enabled }
}

func NewUpdater(st store.Store, trigger AggregateTrigger, opts ...UpdaterOption) *Updater {
	u := &Updater{store: st, trigger: trigger, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// HandleVerificationEvent overwrites the record named by evt and, when the
// record ends up collected, triggers aggregation of its group.
//
// It returns an error only for store failures, which the transport should
// redeliver. Invalid events, events for unknown records and stale events
// are logged, counted and acknowledged. Aggregation failures never fail the
// update.
func (u *Updater) HandleVerificationEvent(ctx context.Context, evt *hunt.VerificationEvent) error {
	m := metrics.New(metrics.Namespace).Dimension("Stage", "update")
	defer m.Flush()

	if evt == nil {
		m.Count(metrics.InvalidEvents)
		log.Warn().Msg("Dropping nil verification event")
		return nil
	}
	if err := evt.Validate(); err != nil {
		m.Count(metrics.InvalidEvents)
		log.Warn().Err(err).Str("imageKey", evt.ImageKey).Msg("Dropping invalid verification event")
		return nil
	}

	logger := log.With().
		Str("groupId", evt.GroupID).
		Str("itemId", evt.ItemID).
		Int64("eventTimestamp", evt.Timestamp).
		Logger()
	m.Property("groupId", evt.GroupID).Property("itemId", evt.ItemID)

	rec, err := u.store.UpdateCollection(ctx, hunt.CollectionUpdate{
		GroupID:        evt.GroupID,
		ItemID:         evt.ItemID,
		IsCollected:    evt.IsMatch,
		LabelsDetected: evt.AllLabels,
		MatchedTerms:   evt.MatchedTerms,
		ImageKey:       evt.ImageKey,
		ProcessedAt:    hunt.FormatTimestamp(u.now()),
		EventTimestamp: evt.Timestamp,
		RejectOlder:    u.rejectOlder,
	})
	switch {
	case errors.Is(err, hunt.ErrRecordNotFound):
		m.Count(metrics.RecordMissing)
		logger.Warn().Msg("No collection record for event, acknowledging")
		return nil
	case errors.Is(err, hunt.ErrStaleEvent):
		m.Count(metrics.StaleEventsRejected)
		logger.Warn().Msg("Stale verification event rejected")
		return nil
	case err != nil:
		return fmt.Errorf("update collection %s/%s: %w", evt.GroupID, evt.ItemID, err)
	}
	m.Count(metrics.CollectionUpdates)

	logger.Info().Bool("isCollected", rec.IsCollected).Msg("Collection record updated")

	if !rec.IsCollected {
		return nil
	}
	if err := u.trigger.TriggerAggregation(ctx, evt.GroupID); err != nil {
		m.Count(metrics.AggregatorErrors)
		logger.Error().Err(err).Msg("Aggregation trigger failed, update kept")
	}
	return nil
}
