package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"google.golang.org/genai"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

var wolfRef = hunt.UploadReference{ContainerID: "uploads", ObjectKey: "g1/wolf/image.jpg", GroupID: "g1", ItemID: "wolf"}

type fakeRekognition struct {
	input *rekognition.DetectLabelsInput
	out   *rekognition.DetectLabelsOutput
	err   error
}

func (f *fakeRekognition) DetectLabels(_ context.Context, in *rekognition.DetectLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestRekognitionDetector_RequestAndMapping(t *testing.T) {
	fake := &fakeRekognition{out: &rekognition.DetectLabelsOutput{
		Labels: []rektypes.Label{
			{Name: aws.String("Wolf"), Confidence: aws.Float32(98)},
			{Name: nil, Confidence: aws.Float32(90)},
			{Name: aws.String("Animal"), Confidence: aws.Float32(91.5)},
		},
	}}
	d := NewRekognitionDetector(fake)

	got, err := d.DetectLabels(context.Background(), wolfRef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(fake.input.Image.S3Object.Bucket) != "uploads" || aws.ToString(fake.input.Image.S3Object.Name) != "g1/wolf/image.jpg" {
		t.Errorf("wrong S3 object in request: %+v", fake.input.Image.S3Object)
	}
	if aws.ToInt32(fake.input.MaxLabels) != 20 || aws.ToFloat32(fake.input.MinConfidence) != 70 {
		t.Errorf("wrong limits: max=%d min=%v", aws.ToInt32(fake.input.MaxLabels), aws.ToFloat32(fake.input.MinConfidence))
	}
	if len(got) != 2 || got[0].Name != "Wolf" || got[1].Confidence != 91.5 {
		t.Errorf("unexpected labels: %+v", got)
	}
}

func TestRekognitionDetector_Error(t *testing.T) {
	d := NewRekognitionDetector(&fakeRekognition{err: errors.New("throttled")})
	if _, err := d.DetectLabels(context.Background(), wolfRef); err == nil {
		t.Fatal("expected error")
	}
}

func TestRekognitionDetector_RejectedImage(t *testing.T) {
	for name, err := range map[string]error{
		"too large":  &rektypes.ImageTooLargeException{Message: aws.String("Image size is too large")},
		"bad format": &rektypes.InvalidImageFormatException{Message: aws.String("Request has invalid image format")},
	} {
		t.Run(name, func(t *testing.T) {
			d := NewRekognitionDetector(&fakeRekognition{err: err})
			if _, got := d.DetectLabels(context.Background(), wolfRef); !errors.Is(got, hunt.ErrImageRejected) {
				t.Errorf("error = %v, want ErrImageRejected", got)
			}
		})
	}
	d := NewRekognitionDetector(&fakeRekognition{err: errors.New("throttled")})
	if _, err := d.DetectLabels(context.Background(), wolfRef); errors.Is(err, hunt.ErrImageRejected) {
		t.Error("throttling must stay retryable")
	}
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchImage(context.Context, hunt.UploadReference) ([]byte, string, error) {
	return f.data, "image/jpeg", f.err
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	text     string
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiDetector_ParsesFencedJSON(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"labels\":[{\"name\":\"wolf\",\"confidence\":96},{\"name\":\"snow\",\"confidence\":80}]}\n```"}
	d := newGeminiDetector(gen, &fakeFetcher{data: []byte{0xff, 0xd8}}, "")

	got, err := d.DetectLabels(context.Background(), wolfRef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.model != DefaultGeminiModel {
		t.Errorf("expected default model, got %s", gen.model)
	}
	blob := gen.contents[0].Parts[0].InlineData
	if blob == nil || blob.MIMEType != "image/jpeg" || len(blob.Data) != 2 {
		t.Errorf("image was not sent inline: %+v", blob)
	}
	want := []labels.Detected{{Name: "wolf", Confidence: 96}, {Name: "snow", Confidence: 80}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGeminiDetector_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		gen     *fakeGenerator
	}{
		{"fetch fails", &fakeFetcher{err: errors.New("no such key")}, &fakeGenerator{}},
		{"model fails", &fakeFetcher{}, &fakeGenerator{err: errors.New("quota")}},
		{"unparsable reply", &fakeFetcher{}, &fakeGenerator{text: "I see a wolf."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newGeminiDetector(tt.gen, tt.fetcher, "gemini-test")
			if _, err := d.DetectLabels(context.Background(), wolfRef); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGeminiModelName(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")
	if GeminiModelName() != DefaultGeminiModel {
		t.Errorf("expected default model")
	}
	t.Setenv("GEMINI_MODEL", "gemini-custom")
	if GeminiModelName() != "gemini-custom" {
		t.Errorf("expected env override")
	}
}

func TestStaticDetector(t *testing.T) {
	d := NewStaticDetector([]labels.Detected{{Name: "dog", Confidence: 90}})
	d.Set("g1/wolf/image.jpg", []labels.Detected{{Name: "wolf", Confidence: 99}})

	got, _ := d.DetectLabels(context.Background(), wolfRef)
	if len(got) != 1 || got[0].Name != "wolf" {
		t.Errorf("expected per-key labels, got %+v", got)
	}
	other := wolfRef
	other.ObjectKey = "g1/fox/image.jpg"
	got, _ = d.DetectLabels(context.Background(), other)
	if len(got) != 1 || got[0].Name != "dog" {
		t.Errorf("expected fallback labels, got %+v", got)
	}
}

func TestParseStaticLabels(t *testing.T) {
	got, err := ParseStaticLabels("wolf:98, animal:91.5,mammal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []labels.Detected{{Name: "wolf", Confidence: 98}, {Name: "animal", Confidence: 91.5}, {Name: "mammal", Confidence: 100}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("label %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"wolf:high", ":90"} {
		if _, err := ParseStaticLabels(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
