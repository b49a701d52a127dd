package hunt

import (
	"encoding/json"
	"fmt"
	"time"
)

// VerificationEvent is the message published once per processed upload.
// JSON field names are the wire contract between the analyzer and the
// collection updater.
type VerificationEvent struct {
	ImageKey     string   `json:"imageKey"`
	GroupID      string   `json:"groupId"`
	ItemID       string   `json:"itemId"`
	IsMatch      bool     `json:"isMatch"`
	MatchedTerms []string `json:"matchedItems"`
	AllLabels    []string `json:"allDetectedLabels"`
	Timestamp    int64    `json:"timestamp"`
}

// NewVerificationEvent builds the event for ref at time now.
func NewVerificationEvent(ref UploadReference, isMatch bool, matched, labels []string, now time.Time) *VerificationEvent {
	if matched == nil {
		matched = []string{}
	}
	if labels == nil {
		labels = []string{}
	}
	return &VerificationEvent{
		ImageKey:     ref.ObjectKey,
		GroupID:      ref.GroupID,
		ItemID:       ref.ItemID,
		IsMatch:      isMatch,
		MatchedTerms: matched,
		AllLabels:    labels,
		Timestamp:    now.UnixMilli(),
	}
}

// UnmarshalJSON accepts "sessionId" as an alias of "groupId" so messages
// from older publishers still decode.
func (e *VerificationEvent) UnmarshalJSON(data []byte) error {
	type plain VerificationEvent
	var aux struct {
		plain
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = VerificationEvent(aux.plain)
	if e.GroupID == "" {
		e.GroupID = aux.SessionID
	}
	if e.MatchedTerms == nil {
		e.MatchedTerms = []string{}
	}
	if e.AllLabels == nil {
		e.AllLabels = []string{}
	}
	return nil
}

// Validate checks the fields the updater relies on.
func (e *VerificationEvent) Validate() error {
	switch {
	case e.GroupID == "":
		return fmt.Errorf("%w: missing groupId", ErrInvalidEvent)
	case e.ItemID == "":
		return fmt.Errorf("%w: missing itemId", ErrInvalidEvent)
	case e.ImageKey == "":
		return fmt.Errorf("%w: missing imageKey", ErrInvalidEvent)
	case e.Timestamp <= 0:
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	case e.IsMatch && len(e.MatchedTerms) == 0:
		return fmt.Errorf("%w: isMatch set without matched terms", ErrInvalidEvent)
	}
	return nil
}

// DecodeVerificationEvent unmarshals and validates one event body.
func DecodeVerificationEvent(data []byte) (*VerificationEvent, error) {
	var evt VerificationEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}
