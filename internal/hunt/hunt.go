// Package hunt defines the typed records shared by every stage of the
// scavenger hunt verification pipeline: upload references parsed from
// object keys, the VerificationEvent wire schema, the per-item
// CollectionRecord, and the group aggregate.
//
// Records are validated at the boundary where they enter the pipeline
// (object key parse, message decode) so later stages can trust them.
package hunt

import (
	"strings"
	"time"
)

// GroupKind distinguishes the two owners of a checklist. Teams and
// sessions share the same record shape and the same pipeline.
type GroupKind string

const (
	KindTeam    GroupKind = "team"
	KindSession GroupKind = "session"
)

// Valid reports whether k is a known group kind.
func (k GroupKind) Valid() bool {
	return k == KindTeam || k == KindSession
}

// processedAtLayout is ISO-8601 with millisecond precision in UTC.
const processedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t the way persisted timestamps are stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(processedAtLayout)
}

// Item is a catalog entry a participant can be asked to photograph.
// RequiredTerms derives the term set attached to uploads of this item.
type Item struct {
	ID         string   `json:"itemId" dynamodbav:"-"`
	CategoryID string   `json:"categoryId,omitempty" dynamodbav:"categoryId,omitempty"`
	Name       string   `json:"name" dynamodbav:"name"`
	SciName    string   `json:"sciName,omitempty" dynamodbav:"sciName,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty" dynamodbav:"synonyms,omitempty"`
}

// RequiredTerms returns the lowercase synonyms followed by the canonical
// name, with blanks and duplicates removed.
func (i Item) RequiredTerms() []string {
	terms := make([]string, 0, len(i.Synonyms)+1)
	seen := make(map[string]bool, len(i.Synonyms)+1)
	for _, t := range append(append([]string{}, i.Synonyms...), i.Name) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// Group is the aggregate for one team or session. IsCompleted only ever
// moves from false to true.
type Group struct {
	ID          string    `json:"groupId" dynamodbav:"-"`
	Kind        GroupKind `json:"kind" dynamodbav:"kind"`
	Name        string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty" dynamodbav:"categoryId,omitempty"`
	IsCompleted bool      `json:"isCompleted" dynamodbav:"isCompleted"`
	CompletedAt string    `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
}

// CollectionRecord is the per-(group, item) state. It is created with
// IsCollected=false when the group is instantiated and afterwards only
// mutated by the collection updater. Records are never deleted.
type CollectionRecord struct {
	GroupID        string   `json:"groupId" dynamodbav:"-"`
	ItemID         string   `json:"itemId" dynamodbav:"-"`
	IsCollected    bool     `json:"isCollected" dynamodbav:"isCollected"`
	LabelsDetected []string `json:"labelsDetected,omitempty" dynamodbav:"labelsDetected,omitempty"`
	MatchedTerms   []string `json:"matchedTerms,omitempty" dynamodbav:"matchedTerms,omitempty"`
	ImageKey       string   `json:"imageKey,omitempty" dynamodbav:"imageKey,omitempty"`
	ProcessedAt    string   `json:"processedAt,omitempty" dynamodbav:"processedAt,omitempty"`
	EventTimestamp int64    `json:"eventTimestamp,omitempty" dynamodbav:"eventTimestamp,omitempty"`
}

// CollectionUpdate is the overwrite the updater applies to a record.
type CollectionUpdate struct {
	GroupID        string
	ItemID         string
	IsCollected    bool
	LabelsDetected []string
	MatchedTerms   []string
	ImageKey       string
	ProcessedAt    string
	EventTimestamp int64

	// RejectOlder refuses the overwrite when the stored EventTimestamp is
	// newer than this one.
	RejectOlder bool
}

// GroupStatus is a read-only view of a group and all of its records.
type GroupStatus struct {
	Group   *Group              `json:"group"`
	Records []*CollectionRecord `json:"records"`
}

// Collected returns how many of the group's records are collected.
func (s *GroupStatus) Collected() int {
	n := 0
	for _, r := range s.Records {
		if r.IsCollected {
			n++
		}
	}
	return n
}
