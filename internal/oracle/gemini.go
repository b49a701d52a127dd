package oracle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/eduzsantillan/scavenger-hunt/internal/assets"
	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/jsonutil"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

// DefaultGeminiModel is used when GEMINI_MODEL is unset.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModelName resolves the model from GEMINI_MODEL or the default.
func GeminiModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultGeminiModel
}

// generator is the subset of genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ImageFetcher loads the bytes of an uploaded image.
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref hunt.UploadReference) ([]byte, string, error)
}

// GeminiDetector sends the image inline to a Gemini model and asks for a
// JSON label list.
type GeminiDetector struct {
	models  generator
	fetcher ImageFetcher
	model   string
}

var _ Detector = (*GeminiDetector)(nil)

// NewGeminiClient creates a Gemini API client for the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

func NewGeminiDetector(client *genai.Client, fetcher ImageFetcher, model string) *GeminiDetector {
	return newGeminiDetector(client.Models, fetcher, model)
}

func newGeminiDetector(models generator, fetcher ImageFetcher, model string) *GeminiDetector {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiDetector{models: models, fetcher: fetcher, model: model}
}

func (d *GeminiDetector) Name() string { return BackendGemini }

type geminiLabelResponse struct {
	Labels []labels.Detected `json:"labels"`
}

func (d *GeminiDetector) DetectLabels(ctx context.Context, ref hunt.UploadReference) ([]labels.Detected, error) {
	data, mimeType, err := d.fetcher.FetchImage(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref.ObjectKey, err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.LabelDetectionPrompt}},
		},
		ResponseMIMEType: "application/json",
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		{Text: "Label this photo."},
	}

	callStart := time.Now()
	resp, err := d.models.GenerateContent(ctx, d.model, []*genai.Content{{Role: "user", Parts: parts}}, config)
	if err != nil {
		return nil, fmt.Errorf("gemini GenerateContent %s: %w", ref.ObjectKey, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini returned an empty response for %s", ref.ObjectKey)
	}

	parsed, err := jsonutil.ParseJSON[geminiLabelResponse](resp.Text())
	if err != nil {
		return nil, fmt.Errorf("parse gemini labels for %s: %w", ref.ObjectKey, err)
	}
	log.Debug().
		Str("imageKey", ref.ObjectKey).
		Str("model", d.model).
		Int("labels", len(parsed.Labels)).
		Dur("elapsed", time.Since(callStart)).
		Msg("Gemini labels detected")
	return parsed.Labels, nil
}
