package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	groups  map[string]hunt.Group
	records map[string]map[string]hunt.CollectionRecord
	items   map[string]hunt.Item
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:  make(map[string]hunt.Group),
		records: make(map[string]map[string]hunt.CollectionRecord),
		items:   make(map[string]hunt.Item),
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func copyRecord(r hunt.CollectionRecord) *hunt.CollectionRecord {
	r.LabelsDetected = copyStrings(r.LabelsDetected)
	r.MatchedTerms = copyStrings(r.MatchedTerms)
	return &r
}

func (m *MemoryStore) CreateGroup(_ context.Context, group *hunt.Group, itemIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group.ID]; !ok {
		g := *group
		g.CreatedAt = hunt.FormatTimestamp(time.Now())
		if group.CreatedAt != "" {
			g.CreatedAt = group.CreatedAt
		}
		m.groups[group.ID] = g
	}
	recs, ok := m.records[group.ID]
	if !ok {
		recs = make(map[string]hunt.CollectionRecord)
		m.records[group.ID] = recs
	}
	for _, itemID := range dedupeIDs(itemIDs) {
		if _, exists := recs[itemID]; !exists {
			recs[itemID] = hunt.CollectionRecord{GroupID: group.ID, ItemID: itemID}
		}
	}
	return nil
}

func (m *MemoryStore) GetGroup(_ context.Context, groupID string) (*hunt.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *MemoryStore) GetCollectionRecord(_ context.Context, groupID, itemID string) (*hunt.CollectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[groupID][itemID]
	if !ok {
		return nil, nil
	}
	return copyRecord(r), nil
}

func (m *MemoryStore) ListCollectionRecords(_ context.Context, groupID string) ([]*hunt.CollectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(groupID), nil
}

func (m *MemoryStore) listLocked(groupID string) []*hunt.CollectionRecord {
	out := make([]*hunt.CollectionRecord, 0, len(m.records[groupID]))
	for _, r := range m.records[groupID] {
		out = append(out, copyRecord(r))
	}
	sortRecords(out)
	return out
}

func (m *MemoryStore) UpdateCollection(_ context.Context, upd hunt.CollectionUpdate) (*hunt.CollectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[upd.GroupID][upd.ItemID]
	if !ok {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrRecordNotFound)
	}
	if upd.RejectOlder && r.EventTimestamp > upd.EventTimestamp {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrStaleEvent)
	}

	r.IsCollected = upd.IsCollected
	r.LabelsDetected = copyStrings(nonNil(upd.LabelsDetected))
	r.MatchedTerms = copyStrings(nonNil(upd.MatchedTerms))
	r.ImageKey = upd.ImageKey
	r.ProcessedAt = upd.ProcessedAt
	r.EventTimestamp = upd.EventTimestamp
	m.records[upd.GroupID][upd.ItemID] = r
	return copyRecord(r), nil
}

func (m *MemoryStore) MarkGroupCompleted(_ context.Context, groupID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return false, fmt.Errorf("mark group %s completed: %w", groupID, hunt.ErrGroupNotFound)
	}
	if g.IsCompleted {
		return false, nil
	}
	g.IsCompleted = true
	if g.CompletedAt == "" {
		g.CompletedAt = hunt.FormatTimestamp(at)
	}
	m.groups[groupID] = g
	return true, nil
}

func (m *MemoryStore) GetGroupStatus(_ context.Context, groupID string) (*hunt.GroupStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return nil, nil
	}
	return &hunt.GroupStatus{Group: &g, Records: m.listLocked(groupID)}, nil
}

func (m *MemoryStore) PutItem(_ context.Context, item *hunt.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := *item
	it.Synonyms = copyStrings(item.Synonyms)
	m.items[item.ID] = it
	return nil
}

func (m *MemoryStore) GetItem(_ context.Context, itemID string) (*hunt.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	it.Synonyms = copyStrings(it.Synonyms)
	return &it, nil
}
