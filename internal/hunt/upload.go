package hunt

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// UploadReference identifies one uploaded photo. GroupID and ItemID are
// derived from the object key at parse time and never change.
type UploadReference struct {
	ContainerID string
	ObjectKey   string
	GroupID     string
	ItemID      string
}

// UploadKey builds the object key for a photo of itemID in groupID.
// ext is given without the leading dot.
func UploadKey(groupID, itemID, ext string) string {
	return fmt.Sprintf("%s/%s/image.%s", groupID, itemID, ext)
}

// ParseUploadReference splits an object key of the form
// {groupId}/{itemId}/{suffix}. The key is expected already decoded; use
// DecodeEventKey for keys taken from storage notifications.
func ParseUploadReference(containerID, key string) (UploadReference, error) {
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return UploadReference{}, fmt.Errorf("%w: %q", ErrInvalidUploadKey, key)
	}
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return UploadReference{}, fmt.Errorf("%w: %q: expected {groupId}/{itemId}/{suffix}", ErrInvalidUploadKey, key)
	}
	return UploadReference{
		ContainerID: containerID,
		ObjectKey:   key,
		GroupID:     parts[0],
		ItemID:      parts[1],
	}, nil
}

// DecodeEventKey undoes the form encoding S3 applies to object keys in
// event notifications ("+" for space, %XX escapes).
func DecodeEventKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decode %q: %v", ErrInvalidUploadKey, raw, err)
	}
	return key, nil
}

// Ext returns the lowercase suffix extension without the dot.
func (r UploadReference) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(r.ObjectKey)), ".")
}
