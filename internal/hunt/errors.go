package hunt

import "errors"

var (
	// ErrInvalidUploadKey means an object key is not {groupId}/{itemId}/{suffix}.
	ErrInvalidUploadKey = errors.New("invalid upload key")

	// ErrInvalidEvent means a VerificationEvent failed boundary validation.
	ErrInvalidEvent = errors.New("invalid verification event")

	// ErrRecordNotFound means no CollectionRecord exists for (groupId, itemId).
	ErrRecordNotFound = errors.New("collection record not found")

	// ErrGroupNotFound means the group aggregate record does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrImageRejected means the stored photo can never be labelled, for
	// example because it is too large or not a decodable image. Retrying the
	// same object fails the same way.
	ErrImageRejected = errors.New("image rejected")

	// ErrStaleEvent means a newer event has already been applied to the record.
	ErrStaleEvent = errors.New("stale verification event")
)
