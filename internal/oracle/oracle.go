// Package oracle wraps the external image label detectors behind a single
// Detector interface. The analyzer depends only on that interface, so the
// backend can be switched by configuration without touching the pipeline.
//
// Detectors are asked for at most labels.MaxLabels results at or above
// labels.MinConfidence, but callers still run labels.Normalize on the
// output. A detector error means the upload was not processed; detectors
// never retry internally.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
)

// Backend names accepted by ORACLE_BACKEND.
const (
	BackendRekognition = "rekognition"
	BackendGemini      = "gemini"
	BackendStatic      = "static"
)

// Detector returns (name, confidence) pairs for the image behind ref.
type Detector interface {
	DetectLabels(ctx context.Context, ref hunt.UploadReference) ([]labels.Detected, error)
	Name() string
}

// StaticDetector returns preset labels per object key. It backs the local
// CLI, where no image oracle is reachable.
type StaticDetector struct {
	byKey    map[string][]labels.Detected
	fallback []labels.Detected
}

var _ Detector = (*StaticDetector)(nil)

// NewStaticDetector creates a detector that answers fallback for any key
// without an explicit entry.
func NewStaticDetector(fallback []labels.Detected) *StaticDetector {
	return &StaticDetector{byKey: make(map[string][]labels.Detected), fallback: fallback}
}

// Set registers the labels returned for an object key.
func (d *StaticDetector) Set(key string, detected []labels.Detected) {
	d.byKey[key] = detected
}

func (d *StaticDetector) DetectLabels(_ context.Context, ref hunt.UploadReference) ([]labels.Detected, error) {
	if detected, ok := d.byKey[ref.ObjectKey]; ok {
		return detected, nil
	}
	return d.fallback, nil
}

func (d *StaticDetector) Name() string { return BackendStatic }

// ParseStaticLabels parses "wolf:98,animal:91" into detected labels. A
// label without a confidence gets 100.
func ParseStaticLabels(raw string) ([]labels.Detected, error) {
	var out []labels.Detected
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, conf, found := strings.Cut(part, ":")
		d := labels.Detected{Name: strings.TrimSpace(name), Confidence: 100}
		if found {
			if _, err := fmt.Sscanf(strings.TrimSpace(conf), "%g", &d.Confidence); err != nil {
				return nil, fmt.Errorf("label %q: invalid confidence %q", name, conf)
			}
		}
		if d.Name == "" {
			return nil, fmt.Errorf("empty label name in %q", part)
		}
		out = append(out, d)
	}
	return out, nil
}
