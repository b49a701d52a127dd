package main

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
)

type uploadProcessor interface {
	ProcessUpload(ctx context.Context, ref hunt.UploadReference) (*hunt.VerificationEvent, error)
}

type handler struct {
	analyzer uploadProcessor
	warm     bool
}

// handle processes every record of the notification. Invalid keys and
// photos the oracle rejects are skipped; any processing failure fails the whole invocation after the
// remaining records were attempted. Records already published will be
// published again on retry, which the updater absorbs.
func (h *handler) handle(ctx context.Context, s3Event events.S3Event) error {
	if !h.warm {
		h.warm = true
		log.Info().Str("function", "analyze-image-lambda").Msg("Cold start, first invocation")
	}

	var errs []error
	for _, record := range s3Event.Records {
		bucket := record.S3.Bucket.Name
		ref, err := parseRecordKey(bucket, record.S3.Object.Key)
		if err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Str("key", record.S3.Object.Key).Msg("Skipping object outside the upload layout")
			metrics.New(metrics.Namespace).Count(metrics.InvalidEvents).Property("key", record.S3.Object.Key).Flush()
			continue
		}
		_, err = h.analyzer.ProcessUpload(ctx, ref)
		if errors.Is(err, hunt.ErrImageRejected) {
			log.Warn().Err(err).Str("key", ref.ObjectKey).Msg("Skipping photo the oracle cannot label")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("key", ref.ObjectKey).Msg("Failed to process upload")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseRecordKey(bucket, rawKey string) (hunt.UploadReference, error) {
	key, err := hunt.DecodeEventKey(rawKey)
	if err != nil {
		return hunt.UploadReference{}, err
	}
	return hunt.ParseUploadReference(bucket, key)
}
