// Package catalog keeps a SQLite index of conversation metadata so an export can be
// searched without decoding it again.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/chat-archive/archive"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0,
    model TEXT NOT NULL DEFAULT '',
    messages INTEGER NOT NULL DEFAULT 0,
    nodes INTEGER NOT NULL DEFAULT 0,
    branches INTEGER NOT NULL DEFAULT 0,
    content_types TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
`

const selectColumns = `SELECT id, title, created_at, updated_at, model, messages, nodes, branches, content_types FROM conversations`

// Store persists catalog records in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog at dsn and migrates its schema.
// dsn examples: "catalog.db", "file:catalog.db?cache=shared&mode=rwc", ":memory:".
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("catalog: empty dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open sqlite")
	}
	// A single connection keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "catalog: set pragma %s", p)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "catalog: migrate")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or replaces the given records in one transaction.
func (s *Store) Upsert(ctx context.Context, records ...Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "catalog: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO conversations (id, title, created_at, updated_at, model, messages, nodes, branches, content_types)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    title = excluded.title,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    model = excluded.model,
    messages = excluded.messages,
    nodes = excluded.nodes,
    branches = excluded.branches,
    content_types = excluded.content_types`)
	if err != nil {
		return errors.Wrap(err, "catalog: prepare upsert")
	}
	defer stmt.Close()

	for _, r := range records {
		cts, err := json.Marshal(nonNil(r.ContentTypes))
		if err != nil {
			return errors.Wrap(err, "catalog: marshal content types")
		}
		if _, err := stmt.ExecContext(ctx,
			r.ConversationID, r.Title, unixOrZero(r.CreatedAt), unixOrZero(r.UpdatedAt),
			r.Model, r.Messages, r.Nodes, r.Branches, string(cts),
		); err != nil {
			return errors.Wrapf(err, "catalog: upsert %q", r.ConversationID)
		}
	}
	return errors.Wrap(tx.Commit(), "catalog: commit")
}

// UpsertSet catalogs every conversation of a set.
func (s *Store) UpsertSet(ctx context.Context, set *archive.ConversationSet) (int, error) {
	convs := set.All()
	records := make([]Record, 0, len(convs))
	for _, c := range convs {
		records = append(records, BuildRecord(c))
	}
	if err := s.Upsert(ctx, records...); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Get returns the record with the given conversation id.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "catalog: get")
	}
	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return Record{}, false, err
	}
	return recs[0], true, nil
}

// SearchTitle returns records whose title contains needle, ignoring case, most
// recently updated first.
func (s *Store) SearchTitle(ctx context.Context, needle string) ([]Record, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(needle))) + "%"
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE lower(title) LIKE ? ESCAPE '\' ORDER BY updated_at DESC, id`, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: search title")
	}
	return scanRecords(rows)
}

// spanStart and spanEnd order a row's timestamps the way FilterByDate does. A missing
// timestamp (0) takes the value of the other.
const (
	spanStart = `(CASE WHEN created_at > 0 AND updated_at > 0 THEN min(created_at, updated_at) ELSE max(created_at, updated_at) END)`
	spanEnd   = `max(created_at, updated_at)`
)

// ListBetween returns records whose [created, updated] span overlaps the inclusive
// range, oldest first, matching ConversationSet.FilterByDate. Zero bounds are
// unbounded; undated records are returned only when both bounds are zero.
func (s *Store) ListBetween(ctx context.Context, r archive.DateRange) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if r.Unbounded() {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY updated_at, id`)
	} else {
		from, to := int64(0), int64(1<<62)
		if !r.From.IsZero() {
			from = r.From.Unix()
		}
		if !r.To.IsZero() {
			to = r.To.Unix()
		}
		rows, err = s.db.QueryContext(ctx,
			selectColumns+` WHERE `+spanEnd+` > 0 AND `+spanStart+` <= ? AND `+spanEnd+` >= ? ORDER BY updated_at, id`,
			to, from)
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: list between")
	}
	return scanRecords(rows)
}

// Count returns the number of catalogued conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM conversations`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "catalog: count")
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                  Record
			created, updated   int64
			contentTypesString string
		)
		if err := rows.Scan(&r.ConversationID, &r.Title, &created, &updated, &r.Model,
			&r.Messages, &r.Nodes, &r.Branches, &contentTypesString); err != nil {
			return nil, errors.Wrap(err, "catalog: scan")
		}
		r.CreatedAt = timeOrZero(created)
		r.UpdatedAt = timeOrZero(updated)
		if err := json.Unmarshal([]byte(contentTypesString), &r.ContentTypes); err != nil {
			return nil, errors.Wrapf(err, "catalog: content types of %q", r.ConversationID)
		}
		if len(r.ContentTypes) == 0 {
			r.ContentTypes = nil
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "catalog: rows")
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
