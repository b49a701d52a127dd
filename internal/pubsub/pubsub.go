// Package pubsub carries VerificationEvents from the analyzer to the
// collection updater. Producers depend on Publisher; consumers receive
// events through a Handler. Delivery is at-least-once with no ordering
// guarantee, so handlers must be idempotent.
//
// Production publishes to EventBridge; a rule forwards matching events to
// an SQS queue that triggers the updater Lambda. MemoryChannel provides the
// same contract in-process for the CLI and tests.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// EventBridge routing fields for verification events.
const (
	Source     = "scavenger-hunt.verification"
	DetailType = "VerificationEvent"
)

// Publisher emits one event and returns only after the transport accepted
// it. Implementations do not retry.
type Publisher interface {
	Publish(ctx context.Context, evt *hunt.VerificationEvent) error
}

// Handler consumes one delivered event. A non-nil error asks the
// transport to redeliver.
type Handler func(ctx context.Context, evt *hunt.VerificationEvent) error

// envelope is the EventBridge event shape as it arrives in an SQS body.
type envelope struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
}

// DecodeMessage extracts and validates the event from a queue message
// body. Bodies wrapped in an EventBridge envelope and bare event bodies
// are both accepted.
func DecodeMessage(body []byte) (*hunt.VerificationEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", hunt.ErrInvalidEvent, err)
	}
	if len(env.Detail) > 0 {
		if env.DetailType != "" && env.DetailType != DetailType {
			return nil, fmt.Errorf("%w: unexpected detail-type %q", hunt.ErrInvalidEvent, env.DetailType)
		}
		return hunt.DecodeVerificationEvent(env.Detail)
	}
	return hunt.DecodeVerificationEvent(body)
}
