package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/go-cmp/cmp"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeAnalyzer struct {
	refs []hunt.UploadReference
	fail map[string]error
}

func (f *fakeAnalyzer) ProcessUpload(_ context.Context, ref hunt.UploadReference) (*hunt.VerificationEvent, error) {
	f.refs = append(f.refs, ref)
	if err := f.fail[ref.ObjectKey]; err != nil {
		return nil, err
	}
	return &hunt.VerificationEvent{}, nil
}

func s3Record(bucket, key string) events.S3EventRecord {
	return events.S3EventRecord{
		EventName: "ObjectCreated:Put",
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key},
		},
	}
}

func TestHandle_DecodesKeysAndSkipsInvalid(t *testing.T) {
	fake := &fakeAnalyzer{}
	h := &handler{analyzer: fake}
	err := h.handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("uploads", "team+one/gray%20wolf/image.jpg"),
		s3Record("uploads", "stray-file.jpg"),
		s3Record("uploads", "team-1/owl/image.png"),
	}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := []hunt.UploadReference{
		{ContainerID: "uploads", ObjectKey: "team one/gray wolf/image.jpg", GroupID: "team one", ItemID: "gray wolf"},
		{ContainerID: "uploads", ObjectKey: "team-1/owl/image.png", GroupID: "team-1", ItemID: "owl"},
	}
	if diff := cmp.Diff(want, fake.refs); diff != "" {
		t.Errorf("processed refs mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_RejectedImageIsAcknowledged(t *testing.T) {
	fake := &fakeAnalyzer{fail: map[string]error{
		"team-1/wolf/image.jpg": fmt.Errorf("too large: %w", hunt.ErrImageRejected),
	}}
	h := &handler{analyzer: fake}
	err := h.handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("uploads", "team-1/wolf/image.jpg"),
		s3Record("uploads", "team-1/owl/image.jpg"),
	}})
	if err != nil {
		t.Fatalf("rejected photo should not fail the invocation: %v", err)
	}
	if len(fake.refs) != 2 {
		t.Errorf("expected both records attempted, got %d", len(fake.refs))
	}
}

func TestHandle_FailureFailsInvocation(t *testing.T) {
	fake := &fakeAnalyzer{fail: map[string]error{"team-1/wolf/image.jpg": errors.New("oracle down")}}
	h := &handler{analyzer: fake}
	err := h.handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("uploads", "team-1/wolf/image.jpg"),
		s3Record("uploads", "team-1/owl/image.jpg"),
	}})
	if err == nil {
		t.Fatal("expected the invocation to fail")
	}
	if len(fake.refs) != 2 {
		t.Errorf("remaining records should still be attempted, got %d", len(fake.refs))
	}
}
