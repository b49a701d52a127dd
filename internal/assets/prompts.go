// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time.
package assets

import (
	_ "embed"
)

// LabelDetectionPrompt is the system instruction for the Gemini label
// oracle. It asks for a JSON label list with 0-100 confidences.
//
//go:embed prompts/label-detection.txt
var LabelDetectionPrompt string
