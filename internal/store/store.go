// Package store persists scavenger hunt state: group aggregates, the
// per-item collection records of each group, and the item catalog.
//
// Three implementations share the Store contract. DynamoStore is the
// production single-table layout where every record of a group shares the
// partition key GROUP#{groupId}; the aggregate lives at SK=META and each
// collection record at SK=ITEM#{itemId}. Catalog items live in their own
// partition ITEM#{itemId} with SK=DEF. SQLiteStore backs the local CLI and
// MemoryStore backs tests.
//
// Collection records are never deleted. Group completion is never reset.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// Store defines the persistence contract used by the pipeline and the
// upload API. All methods are safe for concurrent use.
//
// Get methods return (nil, nil) when the record does not exist.
type Store interface {
	// CreateGroup writes the aggregate and one uncollected record per item.
	// Replaying it for an existing group only adds missing records; it never
	// resets collected ones.
	CreateGroup(ctx context.Context, group *hunt.Group, itemIDs []string) error

	// GetGroup returns the aggregate record. Returns nil, nil if not found.
	GetGroup(ctx context.Context, groupID string) (*hunt.Group, error)

	// GetCollectionRecord returns one record. Returns nil, nil if not found.
	GetCollectionRecord(ctx context.Context, groupID, itemID string) (*hunt.CollectionRecord, error)

	// ListCollectionRecords returns every record of the group, ordered by item ID.
	ListCollectionRecords(ctx context.Context, groupID string) ([]*hunt.CollectionRecord, error)

	// UpdateCollection overwrites the evidence fields of an existing record
	// and returns the new state. It fails with hunt.ErrRecordNotFound when the
	// record does not exist, and with hunt.ErrStaleEvent when upd.RejectOlder
	// is set and a newer event was already applied.
	UpdateCollection(ctx context.Context, upd hunt.CollectionUpdate) (*hunt.CollectionRecord, error)

	// MarkGroupCompleted sets isCompleted=true. It reports whether this call
	// changed the flag and fails with hunt.ErrGroupNotFound when the
	// aggregate does not exist.
	MarkGroupCompleted(ctx context.Context, groupID string, at time.Time) (bool, error)

	// GetGroupStatus returns the aggregate and all records. Returns nil, nil
	// if the group does not exist.
	GetGroupStatus(ctx context.Context, groupID string) (*hunt.GroupStatus, error)

	// PutItem creates or replaces a catalog item.
	PutItem(ctx context.Context, item *hunt.Item) error

	// GetItem returns a catalog item. Returns nil, nil if not found.
	GetItem(ctx context.Context, itemID string) (*hunt.Item, error)
}

// sortRecords orders records by item ID so every implementation lists them
// the same way.
func sortRecords(records []*hunt.CollectionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ItemID < records[j].ItemID
	})
}

// nonNil returns s, or an empty slice when s is nil.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// dedupeIDs drops blanks and repeats while keeping order.
func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
