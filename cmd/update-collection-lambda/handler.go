package main

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/pubsub"
)

type eventHandler interface {
	HandleVerificationEvent(ctx context.Context, evt *hunt.VerificationEvent) error
}

type handler struct {
	updater eventHandler
}

func (h *handler) handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	if len(sqsEvent.Records) == 0 {
		log.Info().Msg("No SQS records to process")
		return resp, nil
	}

	applied := 0
	for _, record := range sqsEvent.Records {
		err := h.processRecord(ctx, record)
		switch {
		case errors.Is(err, hunt.ErrInvalidEvent):
			log.Warn().Err(err).Str("messageId", record.MessageId).Msg("Dropping invalid message")
			metrics.New(metrics.Namespace).Count(metrics.InvalidEvents).Property("messageId", record.MessageId).Flush()
		case err != nil:
			log.Error().Err(err).Str("messageId", record.MessageId).Msg("Failed to process SQS record")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		default:
			applied++
		}
	}

	log.Info().
		Int("records", len(sqsEvent.Records)).
		Int("applied", applied).
		Int("failed", len(resp.BatchItemFailures)).
		Msg("SQS batch processed")
	return resp, nil
}

func (h *handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	evt, err := pubsub.DecodeMessage([]byte(record.Body))
	if err != nil {
		return err
	}
	return h.updater.HandleVerificationEvent(ctx, evt)
}
