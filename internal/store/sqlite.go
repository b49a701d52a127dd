package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers; the conditional updates rely on it.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func encodeList(values []string) string {
	data, _ := json.Marshal(nonNil(values))
	return string(data)
}

func decodeList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const groupColumns = "group_id, kind, name, category_id, is_completed, completed_at, created_at"

func scanGroup(row rowScanner) (*hunt.Group, error) {
	var (
		g                           hunt.Group
		kind                        string
		name, category, completedAt sql.NullString
		isCompleted                 int
	)
	if err := row.Scan(&g.ID, &kind, &name, &category, &isCompleted, &completedAt, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Kind = hunt.GroupKind(kind)
	g.Name = name.String
	g.CategoryID = category.String
	g.IsCompleted = isCompleted != 0
	g.CompletedAt = completedAt.String
	return &g, nil
}

const recordColumns = "group_id, item_id, is_collected, labels_json, matched_json, image_key, processed_at, event_timestamp"

func scanRecord(row rowScanner) (*hunt.CollectionRecord, error) {
	var (
		r                       hunt.CollectionRecord
		isCollected             int
		labelsJSON, matchedJSON sql.NullString
		imageKey, processedAt   sql.NullString
		eventTS                 sql.NullInt64
	)
	if err := row.Scan(&r.GroupID, &r.ItemID, &isCollected, &labelsJSON, &matchedJSON, &imageKey, &processedAt, &eventTS); err != nil {
		return nil, err
	}
	r.IsCollected = isCollected != 0
	r.LabelsDetected = decodeList(labelsJSON)
	r.MatchedTerms = decodeList(matchedJSON)
	r.ImageKey = imageKey.String
	r.ProcessedAt = processedAt.String
	r.EventTimestamp = eventTS.Int64
	return &r, nil
}

// --- Group operations ---

func (s *SQLiteStore) CreateGroup(ctx context.Context, group *hunt.Group, itemIDs []string) error {
	createdAt := group.CreatedAt
	if createdAt == "" {
		createdAt = hunt.FormatTimestamp(time.Now())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create group %s: begin: %w", group.ID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO hunt_groups (group_id, kind, name, category_id, is_completed, created_at)
         VALUES (?, ?, ?, ?, 0, ?)
         ON CONFLICT(group_id) DO NOTHING`,
		group.ID, string(group.Kind), nullable(group.Name), nullable(group.CategoryID), createdAt,
	); err != nil {
		return fmt.Errorf("create group %s: %w", group.ID, err)
	}

	for _, itemID := range dedupeIDs(itemIDs) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collection_records (group_id, item_id, is_collected)
             VALUES (?, ?, 0)
             ON CONFLICT(group_id, item_id) DO NOTHING`,
			group.ID, itemID,
		); err != nil {
			return fmt.Errorf("create group %s record %s: %w", group.ID, itemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create group %s: commit: %w", group.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*hunt.Group, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM hunt_groups WHERE group_id = ?", groupID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

func (s *SQLiteStore) MarkGroupCompleted(ctx context.Context, groupID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hunt_groups SET is_completed = 1, completed_at = COALESCE(completed_at, ?)
         WHERE group_id = ? AND is_completed = 0`,
		hunt.FormatTimestamp(at), groupID,
	)
	if err != nil {
		return false, fmt.Errorf("mark group %s completed: %w", groupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark group %s completed: rows affected: %w", groupID, err)
	}
	if n > 0 {
		return true, nil
	}

	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, fmt.Errorf("mark group %s completed: %w", groupID, hunt.ErrGroupNotFound)
	}
	return false, nil
}

func (s *SQLiteStore) GetGroupStatus(ctx context.Context, groupID string) (*hunt.GroupStatus, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil || g == nil {
		return nil, err
	}
	records, err := s.ListCollectionRecords(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &hunt.GroupStatus{Group: g, Records: records}, nil
}

// --- Collection record operations ---

func (s *SQLiteStore) GetCollectionRecord(ctx context.Context, groupID, itemID string) (*hunt.CollectionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM collection_records WHERE group_id = ? AND item_id = ?",
		groupID, itemID,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s/%s: %w", groupID, itemID, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListCollectionRecords(ctx context.Context, groupID string) ([]*hunt.CollectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM collection_records WHERE group_id = ? ORDER BY item_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", groupID, err)
	}
	defer rows.Close()

	records := []*hunt.CollectionRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record for %s: %w", groupID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records for %s: %w", groupID, err)
	}
	return records, nil
}

func (s *SQLiteStore) UpdateCollection(ctx context.Context, upd hunt.CollectionUpdate) (*hunt.CollectionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update record %s/%s: begin: %w", upd.GroupID, upd.ItemID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stored sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT event_timestamp FROM collection_records WHERE group_id = ? AND item_id = ?",
		upd.GroupID, upd.ItemID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, err)
	}
	if upd.RejectOlder && stored.Valid && stored.Int64 > upd.EventTimestamp {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrStaleEvent)
	}

	isCollected := 0
	if upd.IsCollected {
		isCollected = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE collection_records
         SET is_collected = ?, labels_json = ?, matched_json = ?, image_key = ?, processed_at = ?, event_timestamp = ?
         WHERE group_id = ? AND item_id = ?`,
		isCollected, encodeList(upd.LabelsDetected), encodeList(upd.MatchedTerms),
		upd.ImageKey, upd.ProcessedAt, upd.EventTimestamp,
		upd.GroupID, upd.ItemID,
	); err != nil {
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, err)
	}

	row := tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM collection_records WHERE group_id = ? AND item_id = ?",
		upd.GroupID, upd.ItemID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("reload record %s/%s: %w", upd.GroupID, upd.ItemID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update record %s/%s: commit: %w", upd.GroupID, upd.ItemID, err)
	}
	return rec, nil
}

// --- Item catalog ---

func (s *SQLiteStore) PutItem(ctx context.Context, item *hunt.Item) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO items (item_id, category_id, name, sci_name, synonyms_json)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(item_id) DO UPDATE SET
             category_id = excluded.category_id,
             name = excluded.name,
             sci_name = excluded.sci_name,
             synonyms_json = excluded.synonyms_json`,
		item.ID, nullable(item.CategoryID), item.Name, nullable(item.SciName), encodeList(item.Synonyms),
	); err != nil {
		return fmt.Errorf("put item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (*hunt.Item, error) {
	var (
		item              hunt.Item
		category, sciName sql.NullString
		synonyms          sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT item_id, category_id, name, sci_name, synonyms_json FROM items WHERE item_id = ?",
		itemID,
	).Scan(&item.ID, &category, &item.Name, &sciName, &synonyms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	item.CategoryID = category.String
	item.SciName = sciName.String
	item.Synonyms = decodeList(synonyms)
	return &item, nil
}
