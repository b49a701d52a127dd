// Package labels turns raw oracle output into a comparable label set and
// scores it against the terms an item requires.
//
// Both operations are pure. Normalize keeps labels at or above
// MinConfidence, lowercases and deduplicates them, then caps the result at
// MaxLabels by confidence. Evaluate reports a match when the normalized labels and
// the required terms intersect; an empty required set never matches.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Oracle request parameters. Normalize re-applies both so results do not
// depend on the oracle honouring them.
const (
	MinConfidence = 70.0
	MaxLabels     = 20
)

// Detected is one (name, confidence) pair as reported by a label oracle.
// Confidence is on a 0-100 scale.
type Detected struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Normalize filters, lowercases, deduplicates and caps detected labels.
// Duplicates are removed before the MaxLabels cap so case variants do not
// crowd out distinct labels. The result keeps descending-confidence order.
// Empty input yields an empty, non-nil slice.
func Normalize(detected []Detected) []string {
	kept := make([]Detected, 0, len(detected))
	for _, d := range detected {
		if d.Confidence >= MinConfidence {
			kept = append(kept, d)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})

	out := make([]string, 0, min(len(kept), MaxLabels))
	seen := make(map[string]bool, len(kept))
	for _, d := range kept {
		if len(out) == MaxLabels {
			break
		}
		name := strings.ToLower(strings.TrimSpace(d.Name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Match is the result of evaluating a label set against required terms.
type Match struct {
	IsMatch      bool
	MatchedTerms []string
}

// Evaluate intersects normalized labels with the required terms. Matched
// terms are returned in required-term order. Synonyms and the canonical
// name carry equal weight.
func Evaluate(normalized, required []string) Match {
	present := make(map[string]bool, len(normalized))
	for _, l := range normalized {
		present[strings.ToLower(l)] = true
	}

	matched := []string{}
	seen := make(map[string]bool, len(required))
	for _, term := range required {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		if present[term] {
			matched = append(matched, term)
		}
	}
	return Match{IsMatch: len(matched) > 0, MatchedTerms: matched}
}

var (
	// ErrMetadataMissing means the upload carried no required-term metadata.
	ErrMetadataMissing = errors.New("required terms metadata missing")

	// ErrMetadataUnparsable means the metadata was not a JSON array of strings.
	ErrMetadataUnparsable = errors.New("required terms metadata unparsable")
)

// ParseRequiredTerms decodes the requiredList object metadata. On any
// error the returned set is empty and non-nil so callers can continue in
// degraded mode.
func ParseRequiredTerms(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, ErrMetadataMissing
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return []string{}, fmt.Errorf("%w: %v", ErrMetadataUnparsable, err)
	}

	terms := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		terms = append(terms, v)
	}
	return terms, nil
}

// EncodeRequiredTerms is the inverse of ParseRequiredTerms, used when
// attaching metadata to an upload. Non-ASCII runes are written as \u
// escapes: S3 user metadata travels in HTTP headers and comes back
// RFC 2047-encoded when it is not plain ASCII.
func EncodeRequiredTerms(terms []string) string {
	if terms == nil {
		terms = []string{}
	}
	data, _ := json.Marshal(terms)

	var b strings.Builder
	b.Grow(len(data))
	for _, r := range string(data) {
		switch {
		case r < utf8.RuneSelf && r != 0x7f:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
