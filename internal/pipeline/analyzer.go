// Package pipeline wires the three stages of photo verification:
//
//   - Analyzer.ProcessUpload runs on every stored photo. It asks the label
//     oracle what the photo shows, compares that with the item's required
//     terms and publishes one VerificationEvent.
//   - Updater.HandleVerificationEvent consumes those events and overwrites
//     the matching CollectionRecord.
//   - Aggregator.Aggregate recomputes whether every record of a group is
//     collected and marks the group complete.
//
// Stages share no in-process state. Each blocks on a single external call
// and leaves retries to whatever triggered it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/oracle"
	"github.com/eduzsantillan/scavenger-hunt/internal/pubsub"
)

var (
	// ErrOracleFailure means the label oracle could not classify the photo.
	// No event was published.
	ErrOracleFailure = errors.New("label oracle failed")

	// ErrPublishFailure means the event could not be handed to the transport.
	ErrPublishFailure = errors.New("verification event publish failed")
)

// TermsReader returns the required terms attached to an upload. The
// labels.ErrMetadataMissing and labels.ErrMetadataUnparsable errors mark
// degraded input; anything else is a storage failure.
type TermsReader interface {
	RequiredTerms(ctx context.Context, ref hunt.UploadReference) ([]string, error)
}

// ResultTagger records the outcome on the stored photo.
type ResultTagger func(ctx context.Context, ref hunt.UploadReference, isMatch bool) error

// Analyzer implements ProcessUpload.
type Analyzer struct {
	detector  oracle.Detector
	terms     TermsReader
	publisher pubsub.Publisher
	tagger    ResultTagger
	now       func() time.Time
}

// AnalyzerOption customizes an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerClock overrides the clock used for event timestamps.
func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// WithResultTagger tags each photo after its event is published.
func WithResultTagger(t ResultTagger) AnalyzerOption {
	return func(a *Analyzer) { a.tagger = t }
}

func NewAnalyzer(detector oracle.Detector, terms TermsReader, publisher pubsub.Publisher, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		detector:  detector,
		terms:     terms,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessUpload classifies one photo and publishes exactly one
// VerificationEvent for it. A non-nil error means no event was delivered
// and the caller should let its trigger retry.
func (a *Analyzer) ProcessUpload(ctx context.Context, ref hunt.UploadReference) (*hunt.VerificationEvent, error) {
	m := metrics.New(metrics.Namespace).
		Dimension("Oracle", a.detector.Name()).
		Property("groupId", ref.GroupID).
		Property("itemId", ref.ItemID)
	defer m.Flush()

	logger := log.With().
		Str("groupId", ref.GroupID).
		Str("itemId", ref.ItemID).
		Str("key", ref.ObjectKey).
		Logger()

	required, err := a.terms.RequiredTerms(ctx, ref)
	switch {
	case errors.Is(err, labels.ErrMetadataMissing), errors.Is(err, labels.ErrMetadataUnparsable):
		logger.Warn().Err(err).Msg("Degraded metadata, continuing with an empty required set")
		m.Count(metrics.DegradedMetadata)
		required = []string{}
	case err != nil:
		return nil, fmt.Errorf("read required terms: %w", err)
	}

	oracleStart := time.Now()
	detected, err := a.detector.DetectLabels(ctx, ref)
	m.Duration(metrics.OracleLatencyMs, oracleStart)
	if errors.Is(err, hunt.ErrImageRejected) {
		m.Count(metrics.ImagesRejected)
		logger.Warn().Err(err).Str("oracle", a.detector.Name()).Msg("Photo rejected by the label oracle, not retrying")
		return nil, err
	}
	if err != nil {
		m.Count(metrics.OracleErrors)
		logger.Error().Err(err).Str("oracle", a.detector.Name()).Msg("Label detection failed")
		return nil, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}

	normalized := labels.Normalize(detected)
	match := labels.Evaluate(normalized, required)
	m.Metric(metrics.LabelsDetected, float64(len(normalized)), metrics.UnitCount)
	if match.IsMatch {
		m.Count(metrics.Matches)
	}

	evt := hunt.NewVerificationEvent(ref, match.IsMatch, match.MatchedTerms, normalized, a.now())
	if err := a.publisher.Publish(ctx, evt); err != nil {
		m.Count(metrics.PublishErrors)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailure, err)
	}
	m.Count(metrics.EventsPublished).Count(metrics.UploadsProcessed)

	logger.Info().
		Bool("isMatch", evt.IsMatch).
		Strs("matchedItems", evt.MatchedTerms).
		Int("labelCount", len(evt.AllLabels)).
		Int("requiredCount", len(required)).
		Msg("Upload verified")

	if a.tagger != nil {
		if err := a.tagger(ctx, ref, evt.IsMatch); err != nil {
			logger.Warn().Err(err).Msg("Failed to tag processed photo")
		}
	}
	return evt, nil
}
