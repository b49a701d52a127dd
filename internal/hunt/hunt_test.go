package hunt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseUploadReference(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantGroup string
		wantItem  string
		wantErr   bool
	}{
		{"valid jpg", "g1/wolf/image.jpg", "g1", "wolf", false},
		{"uuid group", "a1b2c3d4-e5f6-7890-abcd-ef1234567890/42/image.png", "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "42", false},
		{"too few segments", "g1/image.jpg", "", "", true},
		{"too many segments", "g1/wolf/extra/image.jpg", "", "", true},
		{"empty group", "/wolf/image.jpg", "", "", true},
		{"empty item", "g1//image.jpg", "", "", true},
		{"empty suffix", "g1/wolf/", "", "", true},
		{"traversal", "g1/../image.jpg", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseUploadReference("bucket", tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUploadKey) {
					t.Fatalf("expected ErrInvalidUploadKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.GroupID != tt.wantGroup || ref.ItemID != tt.wantItem {
				t.Errorf("got (%s, %s), want (%s, %s)", ref.GroupID, ref.ItemID, tt.wantGroup, tt.wantItem)
			}
			if ref.ContainerID != "bucket" || ref.ObjectKey != tt.key {
				t.Errorf("reference did not keep container/key: %+v", ref)
			}
		})
	}
}

func TestDecodeEventKey(t *testing.T) {
	got, err := DecodeEventKey("g1/red+fox/image.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "g1/red fox/image.jpg" {
		t.Errorf("got %q", got)
	}

	got, err = DecodeEventKey("g1/caf%C3%A9/image.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "g1/café/image.jpg" {
		t.Errorf("got %q", got)
	}

	if _, err := DecodeEventKey("g1/%zz/image.jpg"); !errors.Is(err, ErrInvalidUploadKey) {
		t.Errorf("expected ErrInvalidUploadKey, got %v", err)
	}
}

func TestUploadKeyRoundTrip(t *testing.T) {
	key := UploadKey("g1", "wolf", "jpg")
	if key != "g1/wolf/image.jpg" {
		t.Fatalf("unexpected key %q", key)
	}
	ref, err := ParseUploadReference("b", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Ext() != "jpg" {
		t.Errorf("expected ext jpg, got %q", ref.Ext())
	}
}

func TestItemRequiredTerms(t *testing.T) {
	item := Item{Name: "Wolf", Synonyms: []string{"Canis Lupus", "wolf", " ", "Grey Wolf"}}
	got := item.RequiredTerms()
	want := []string{"canis lupus", "wolf", "grey wolf"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestVerificationEventWireFormat(t *testing.T) {
	ref := UploadReference{ContainerID: "b", ObjectKey: "g1/wolf/image.jpg", GroupID: "g1", ItemID: "wolf"}
	now := time.UnixMilli(1700000000123)
	evt := NewVerificationEvent(ref, true, []string{"wolf"}, []string{"wolf", "animal"}, now)

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, field := range []string{"imageKey", "groupId", "itemId", "isMatch", "matchedItems", "allDetectedLabels", "timestamp"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing wire field %q in %s", field, data)
		}
	}
	if raw["timestamp"].(float64) != 1700000000123 {
		t.Errorf("timestamp should be epoch millis, got %v", raw["timestamp"])
	}
}

func TestVerificationEventEmptySlicesEncodeAsArrays(t *testing.T) {
	ref := UploadReference{ObjectKey: "g1/wolf/image.jpg", GroupID: "g1", ItemID: "wolf"}
	evt := NewVerificationEvent(ref, false, nil, nil, time.Now())
	data, _ := json.Marshal(evt)
	if !strings.Contains(string(data), `"matchedItems":[]`) || !strings.Contains(string(data), `"allDetectedLabels":[]`) {
		t.Errorf("expected empty arrays, got %s", data)
	}
}

func TestDecodeVerificationEvent_SessionAlias(t *testing.T) {
	body := `{"imageKey":"s1/wolf/image.jpg","sessionId":"s1","itemId":"wolf","isMatch":false,"matchedItems":[],"allDetectedLabels":["dog"],"timestamp":5}`
	evt, err := DecodeVerificationEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.GroupID != "s1" {
		t.Errorf("expected groupId from sessionId alias, got %q", evt.GroupID)
	}
}

func TestDecodeVerificationEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing group", `{"imageKey":"k","itemId":"i","timestamp":1}`},
		{"missing item", `{"imageKey":"k","groupId":"g","timestamp":1}`},
		{"missing key", `{"groupId":"g","itemId":"i","timestamp":1}`},
		{"missing timestamp", `{"imageKey":"k","groupId":"g","itemId":"i"}`},
		{"match without terms", `{"imageKey":"k","groupId":"g","itemId":"i","timestamp":1,"isMatch":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeVerificationEvent([]byte(tt.body)); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 3600))
	if got := FormatTimestamp(ts); got != "2024-03-01T11:30:45.123Z" {
		t.Errorf("got %q", got)
	}
}
