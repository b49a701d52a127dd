package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
)

// AggregateTrigger starts aggregation of a group after one of its records
// became collected.
type AggregateTrigger interface {
	TriggerAggregation(ctx context.Context, groupID string) error
}

// AggregateRequest is the payload of the aggregator Lambda.
type AggregateRequest struct {
	GroupID string `json:"groupId"`
}

// InlineTrigger aggregates in the caller's goroutine. Used by the CLI and
// by the updater Lambda when no aggregator function is configured.
type InlineTrigger struct {
	Aggregator *Aggregator
}

func (t InlineTrigger) TriggerAggregation(ctx context.Context, groupID string) error {
	_, err := t.Aggregator.Aggregate(ctx, groupID)
	return err
}

type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaTrigger invokes the aggregator function asynchronously, so the
// updater returns without waiting for the scan. Lambda retries failed
// async invocations on its own.
type LambdaTrigger struct {
	client      lambdaAPI
	functionARN string
}

func NewLambdaTrigger(client lambdaAPI, functionARN string) *LambdaTrigger {
	return &LambdaTrigger{client: client, functionARN: functionARN}
}

func (t *LambdaTrigger) TriggerAggregation(ctx context.Context, groupID string) error {
	payload, err := json.Marshal(AggregateRequest{GroupID: groupID})
	if err != nil {
		return fmt.Errorf("marshal aggregate request: %w", err)
	}
	_, err = t.client.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(t.functionARN),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke aggregator lambda: %w", err)
	}
	log.Debug().Str("groupId", groupID).Msg("Aggregator Lambda invoked asynchronously")
	return nil
}
