package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/go-cmp/cmp"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

func sampleEvent() *hunt.VerificationEvent {
	ref := hunt.UploadReference{ContainerID: "uploads", ObjectKey: "team-1/wolf/image.jpg", GroupID: "team-1", ItemID: "wolf"}
	return hunt.NewVerificationEvent(ref, true, []string{"wolf"}, []string{"wolf", "animal"}, time.UnixMilli(1700000000000))
}

type fakeEventBridge struct {
	mu     sync.Mutex
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventBridgePublisher_Publish(t *testing.T) {
	fake := &fakeEventBridge{}
	p := NewEventBridgePublisher(fake, "hunt-bus")
	evt := sampleEvent()

	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fake.inputs) != 1 || len(fake.inputs[0].Entries) != 1 {
		t.Fatalf("expected one PutEvents call with one entry, got %+v", fake.inputs)
	}
	entry := fake.inputs[0].Entries[0]
	if aws.ToString(entry.Source) != Source || aws.ToString(entry.DetailType) != DetailType {
		t.Errorf("routing fields = %q/%q", aws.ToString(entry.Source), aws.ToString(entry.DetailType))
	}
	if aws.ToString(entry.EventBusName) != "hunt-bus" {
		t.Errorf("EventBusName = %q", aws.ToString(entry.EventBusName))
	}

	got, err := hunt.DecodeVerificationEvent([]byte(aws.ToString(entry.Detail)))
	if err != nil {
		t.Fatalf("detail does not decode: %v", err)
	}
	if diff := cmp.Diff(evt, got); diff != "" {
		t.Errorf("detail mismatch (-want +got):\n%s", diff)
	}
}

func TestEventBridgePublisher_DefaultBus(t *testing.T) {
	fake := &fakeEventBridge{}
	if err := NewEventBridgePublisher(fake, "").Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if fake.inputs[0].Entries[0].EventBusName != nil {
		t.Error("expected no EventBusName for the default bus")
	}
}

func TestEventBridgePublisher_Errors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeEventBridge
		want string
	}{
		{
			name: "transport error",
			fake: &fakeEventBridge{err: errors.New("throttled")},
			want: "throttled",
		},
		{
			name: "failed entry",
			fake: &fakeEventBridge{out: &eventbridge.PutEventsOutput{
				FailedEntryCount: 1,
				Entries: []eventbridgetypes.PutEventsResultEntry{
					{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("boom")},
				},
			}},
			want: "InternalFailure",
		},
		{
			name: "failed count without entry detail",
			fake: &fakeEventBridge{out: &eventbridge.PutEventsOutput{FailedEntryCount: 1}},
			want: "1 entries failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEventBridgePublisher(tt.fake, "bus").Publish(context.Background(), sampleEvent())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	evt := sampleEvent()
	detail, _ := json.Marshal(evt)
	wrapped, _ := json.Marshal(map[string]any{
		"source":      Source,
		"detail-type": DetailType,
		"detail":      json.RawMessage(detail),
	})
	foreign, _ := json.Marshal(map[string]any{
		"detail-type": "Something Else",
		"detail":      json.RawMessage(detail),
	})

	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{"envelope", wrapped, false},
		{"bare event", detail, false},
		{"foreign detail-type", foreign, true},
		{"not json", []byte("{"), true},
		{"missing fields", []byte(`{"groupId":"g"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage(tt.body)
			if tt.wantErr {
				if !errors.Is(err, hunt.ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if diff := cmp.Diff(evt, got); diff != "" {
				t.Errorf("decoded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryChannel_DeliversPublishedEvents(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{})
	var got []*hunt.VerificationEvent
	ch.Subscribe(func(_ context.Context, evt *hunt.VerificationEvent) error {
		got = append(got, evt)
		return nil
	})

	ctx := context.Background()
	evt := sampleEvent()
	if err := ch.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", ch.Pending())
	}

	stats, err := ch.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Delivered != 1 || ch.Pending() != 0 {
		t.Errorf("stats = %+v, pending = %d", stats, ch.Pending())
	}
	if len(got) != 1 {
		t.Fatalf("handler saw %d events, want 1", len(got))
	}
	if diff := cmp.Diff(evt, got[0]); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryChannel_DuplicateDelivery(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{DuplicateDelivery: true})
	calls := 0
	ch.Subscribe(func(context.Context, *hunt.VerificationEvent) error {
		calls++
		return nil
	})
	ctx := context.Background()
	_ = ch.Publish(ctx, sampleEvent())
	if _, err := ch.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestMemoryChannel_RedeliversUntilSuccess(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{MaxAttempts: 3})
	calls := 0
	ch.Subscribe(func(context.Context, *hunt.VerificationEvent) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	ctx := context.Background()
	_ = ch.Publish(ctx, sampleEvent())
	stats, err := ch.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls != 2 || stats.Delivered != 1 || stats.Redelivered != 1 {
		t.Errorf("calls = %d, stats = %+v", calls, stats)
	}
	if len(ch.DeadLetters()) != 0 {
		t.Error("expected no dead letters")
	}
}

func TestMemoryChannel_DeadLetterAfterMaxAttempts(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{MaxAttempts: 2})
	calls := 0
	ch.Subscribe(func(context.Context, *hunt.VerificationEvent) error {
		calls++
		return errors.New("store down")
	})
	ctx := context.Background()
	_ = ch.Publish(ctx, sampleEvent())
	stats, err := ch.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls != 2 || stats.DeadLetter != 1 {
		t.Errorf("calls = %d, stats = %+v", calls, stats)
	}
	dead := ch.DeadLetters()
	if len(dead) != 1 || dead[0].Attempts != 2 || dead[0].LastErr == nil {
		t.Errorf("dead letters = %+v", dead)
	}
}

func TestMemoryChannel_DropsUndecodable(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{})
	calls := 0
	ch.Subscribe(func(context.Context, *hunt.VerificationEvent) error {
		calls++
		return nil
	})
	ctx := context.Background()
	_ = ch.Publish(ctx, &hunt.VerificationEvent{GroupID: "g"})
	stats, err := ch.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls != 0 || stats.Dropped != 1 {
		t.Errorf("calls = %d, stats = %+v", calls, stats)
	}
}

func TestMemoryChannel_DrainHonorsContext(t *testing.T) {
	ch := NewMemoryChannel(MemoryOptions{})
	_ = ch.Publish(context.Background(), sampleEvent())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ch.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Drain error = %v, want context.Canceled", err)
	}
	if ch.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", ch.Pending())
	}
}
