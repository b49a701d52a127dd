package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// DefaultMaxAttempts matches the queue's maxReceiveCount before a message
// moves to the dead-letter queue.
const DefaultMaxAttempts = 3

// Message is one queued delivery. Body holds the serialized event so
// consumers decode exactly what a queue would hand them.
type Message struct {
	ID       string
	Body     []byte
	Attempts int
	LastErr  error
}

// MemoryOptions tunes a MemoryChannel.
type MemoryOptions struct {
	// MaxAttempts bounds deliveries per message. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// DuplicateDelivery hands every message to subscribers twice, which
	// exercises handler idempotence.
	DuplicateDelivery bool
}

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Delivered   int
	Redelivered int
	Dropped     int
	DeadLetter  int
}

// MemoryChannel is an in-process Publisher with queue semantics:
// messages wait until Drain delivers them, failed deliveries are retried up
// to MaxAttempts, and undecodable bodies are dropped.
type MemoryChannel struct {
	mu       sync.Mutex
	opts     MemoryOptions
	queue    []*Message
	handlers []Handler
	dead     []*Message
}

var _ Publisher = (*MemoryChannel)(nil)

func NewMemoryChannel(opts MemoryOptions) *MemoryChannel {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &MemoryChannel{opts: opts}
}

// Subscribe registers h for every subsequently drained message.
func (c *MemoryChannel) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *MemoryChannel) Publish(ctx context.Context, evt *hunt.VerificationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal VerificationEvent: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, &Message{ID: uuid.NewString(), Body: body})
	if c.opts.DuplicateDelivery {
		c.queue = append(c.queue, &Message{ID: uuid.NewString(), Body: body})
	}
	return nil
}

// Pending reports the number of queued messages.
func (c *MemoryChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// DeadLetters returns messages that exhausted their attempts.
func (c *MemoryChannel) DeadLetters() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.dead))
	for i, m := range c.dead {
		out[i] = *m
	}
	return out
}

// Drain delivers queued messages until the queue is empty, including
// messages published by handlers while draining. A message whose handler
// fails is requeued until it reaches MaxAttempts.
func (c *MemoryChannel) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		msg, handlers := c.next()
		if msg == nil {
			return stats, nil
		}
		msg.Attempts++
		if msg.Attempts > 1 {
			stats.Redelivered++
		}

		evt, err := DecodeMessage(msg.Body)
		if err != nil {
			log.Warn().Err(err).Str("messageId", msg.ID).Msg("Dropping undecodable message")
			stats.Dropped++
			continue
		}

		var deliverErr error
		for _, h := range handlers {
			if err := h(ctx, evt); err != nil {
				deliverErr = errors.Join(deliverErr, err)
			}
		}
		if deliverErr == nil {
			stats.Delivered++
			continue
		}

		msg.LastErr = deliverErr
		c.mu.Lock()
		if msg.Attempts >= c.opts.MaxAttempts {
			c.dead = append(c.dead, msg)
			stats.DeadLetter++
			log.Error().Err(deliverErr).Str("messageId", msg.ID).Int("attempts", msg.Attempts).Msg("Message moved to dead-letter list")
		} else {
			c.queue = append(c.queue, msg)
			log.Warn().Err(deliverErr).Str("messageId", msg.ID).Int("attempts", msg.Attempts).Msg("Delivery failed, message requeued")
		}
		c.mu.Unlock()
	}
}

func (c *MemoryChannel) next() (*Message, []Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, nil
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	return msg, handlers
}
