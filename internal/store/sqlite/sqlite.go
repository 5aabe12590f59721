// Package sqlite implements store.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kweiler/clipscribe/internal/store"
	"github.com/kweiler/clipscribe/pkg/media"
)

// Compile-time assertion that Store satisfies store.Store.
var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	hash       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS segments (
	transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	start_sec     REAL NOT NULL,
	end_sec       REAL NOT NULL,
	pause_sec     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (transcript_id, idx)
);

CREATE TABLE IF NOT EXISTS words (
	transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	segment_idx   INTEGER NOT NULL,
	idx           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	start_sec     REAL NOT NULL,
	end_sec       REAL NOT NULL,
	PRIMARY KEY (transcript_id, segment_idx, idx)
);
`

// Store is a SQLite-backed transcript store.
type Store struct {
	db *sql.DB
}

// dsnParams are appended to every DSN so that each pooled connection gets
// them; plain PRAGMA statements would only configure the connection that
// happened to execute them.
const dsnParams = "_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1"

// New opens (and if necessary creates) the SQLite database at dsn, e.g.
// "file:./clipscribe.db" or ":memory:" for an ephemeral database.
func New(dsn string) (*Store, error) {
	sep := "?"
	if strings.ContainsRune(dsn, '?') {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	if isMemory(dsn) {
		// Each pooled connection to an in-memory DSN opens its own
		// private database, so the pool must stay at one connection
		// for the schema and the data to be visible everywhere.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// isMemory reports whether dsn names an in-memory database rather than a
// file on disk.
func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, name, hash string, t media.Transcript) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM transcripts WHERE hash = $1`, hash).Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("sqlite: check hash: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	id := store.NewID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts (id, name, hash) VALUES ($1, $2, $3)`,
		id, name, hash,
	); err != nil {
		return "", fmt.Errorf("sqlite: insert transcript: %w", err)
	}

	for si, seg := range t.Segments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments (transcript_id, idx, text, start_sec, end_sec, pause_sec)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, si, seg.Text, seg.Start, seg.End, seg.Pause,
		); err != nil {
			return "", fmt.Errorf("sqlite: insert segment %d: %w", si, err)
		}
		for wi, w := range seg.Words {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO words (transcript_id, segment_idx, idx, text, start_sec, end_sec)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, si, wi, w.Text, w.Start, w.End,
			); err != nil {
				return "", fmt.Errorf("sqlite: insert word %d/%d: %w", si, wi, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: commit: %w", err)
	}
	return id, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (media.Transcript, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM transcripts WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Transcript{}, store.ErrNotFound
	}
	if err != nil {
		return media.Transcript{}, fmt.Errorf("sqlite: lookup %q: %w", id, err)
	}
	return s.load(ctx, id)
}

// FindByHash implements store.Store.
func (s *Store) FindByHash(ctx context.Context, hash string) (media.Transcript, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM transcripts WHERE hash = $1`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Transcript{}, store.ErrNotFound
	}
	if err != nil {
		return media.Transcript{}, fmt.Errorf("sqlite: lookup hash: %w", err)
	}
	return s.load(ctx, id)
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]store.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, hash, created_at FROM transcripts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var e store.Entry
		var created time.Time
		if err := rows.Scan(&e.ID, &e.Name, &e.Hash, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		e.CreatedAt = created
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) load(ctx context.Context, id string) (media.Transcript, error) {
	t := media.Transcript{ID: id}

	segRows, err := s.db.QueryContext(ctx,
		`SELECT idx, text, start_sec, end_sec, pause_sec FROM segments
		 WHERE transcript_id = $1 ORDER BY idx`, id)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("sqlite: load segments: %w", err)
	}
	defer segRows.Close()

	for segRows.Next() {
		var idx int
		var seg media.Segment
		if err := segRows.Scan(&idx, &seg.Text, &seg.Start, &seg.End, &seg.Pause); err != nil {
			return media.Transcript{}, fmt.Errorf("sqlite: scan segment: %w", err)
		}
		t.Segments = append(t.Segments, seg)
	}
	if err := segRows.Err(); err != nil {
		return media.Transcript{}, fmt.Errorf("sqlite: iterate segments: %w", err)
	}

	wordRows, err := s.db.QueryContext(ctx,
		`SELECT segment_idx, text, start_sec, end_sec FROM words
		 WHERE transcript_id = $1 ORDER BY segment_idx, idx`, id)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("sqlite: load words: %w", err)
	}
	defer wordRows.Close()

	for wordRows.Next() {
		var segIdx int
		var w media.Word
		if err := wordRows.Scan(&segIdx, &w.Text, &w.Start, &w.End); err != nil {
			return media.Transcript{}, fmt.Errorf("sqlite: scan word: %w", err)
		}
		if segIdx < 0 || segIdx >= len(t.Segments) {
			return media.Transcript{}, fmt.Errorf("sqlite: word references missing segment %d", segIdx)
		}
		t.Segments[segIdx].Words = append(t.Segments[segIdx].Words, w)
	}
	return t, wordRows.Err()
}
