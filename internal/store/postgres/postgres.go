// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segments (
	transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	start_sec     DOUBLE PRECISION NOT NULL,
	end_sec       DOUBLE PRECISION NOT NULL,
	pause_sec     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (transcript_id, idx)
);

CREATE TABLE IF NOT EXISTS words (
	transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	segment_idx   INTEGER NOT NULL,
	idx           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	start_sec     DOUBLE PRECISION NOT NULL,
	end_sec       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (transcript_id, segment_idx, idx)
);
`

// Store is a PostgreSQL-backed transcript store holding a single
// connection pool. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the database at dsn and ensures the
// schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, name, hash string, t media.Transcript) (string, error) {
	var existing string
	err := s.pool.QueryRow(ctx, `SELECT id FROM transcripts WHERE hash = $1`, hash).Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("postgres: check hash: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id := store.NewID()
	if _, err := tx.Exec(ctx,
		`INSERT INTO transcripts (id, name, hash) VALUES ($1, $2, $3)`,
		id, name, hash,
	); err != nil {
		return "", fmt.Errorf("postgres: insert transcript: %w", err)
	}

	for si, seg := range t.Segments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO segments (transcript_id, idx, text, start_sec, end_sec, pause_sec)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, si, seg.Text, seg.Start, seg.End, seg.Pause,
		); err != nil {
			return "", fmt.Errorf("postgres: insert segment %d: %w", si, err)
		}
		for wi, w := range seg.Words {
			if _, err := tx.Exec(ctx,
				`INSERT INTO words (transcript_id, segment_idx, idx, text, start_sec, end_sec)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, si, wi, w.Text, w.Start, w.End,
			); err != nil {
				return "", fmt.Errorf("postgres: insert word %d/%d: %w", si, wi, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres: commit: %w", err)
	}
	return id, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (media.Transcript, error) {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM transcripts WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return media.Transcript{}, store.ErrNotFound
	}
	if err != nil {
		return media.Transcript{}, fmt.Errorf("postgres: lookup %q: %w", id, err)
	}
	return s.load(ctx, id)
}

// FindByHash implements store.Store.
func (s *Store) FindByHash(ctx context.Context, hash string) (media.Transcript, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM transcripts WHERE hash = $1`, hash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return media.Transcript{}, store.ErrNotFound
	}
	if err != nil {
		return media.Transcript{}, fmt.Errorf("postgres: lookup hash: %w", err)
	}
	return s.load(ctx, id)
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]store.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, hash, created_at FROM transcripts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Hash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) load(ctx context.Context, id string) (media.Transcript, error) {
	t := media.Transcript{ID: id}

	segRows, err := s.pool.Query(ctx,
		`SELECT idx, text, start_sec, end_sec, pause_sec FROM segments
		 WHERE transcript_id = $1 ORDER BY idx`, id)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("postgres: load segments: %w", err)
	}
	defer segRows.Close()

	for segRows.Next() {
		var idx int
		var seg media.Segment
		if err := segRows.Scan(&idx, &seg.Text, &seg.Start, &seg.End, &seg.Pause); err != nil {
			return media.Transcript{}, fmt.Errorf("postgres: scan segment: %w", err)
		}
		t.Segments = append(t.Segments, seg)
	}
	if err := segRows.Err(); err != nil {
		return media.Transcript{}, fmt.Errorf("postgres: iterate segments: %w", err)
	}
	segRows.Close()

	wordRows, err := s.pool.Query(ctx,
		`SELECT segment_idx, text, start_sec, end_sec FROM words
		 WHERE transcript_id = $1 ORDER BY segment_idx, idx`, id)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("postgres: load words: %w", err)
	}
	defer wordRows.Close()

	for wordRows.Next() {
		var segIdx int
		var w media.Word
		if err := wordRows.Scan(&segIdx, &w.Text, &w.Start, &w.End); err != nil {
			return media.Transcript{}, fmt.Errorf("postgres: scan word: %w", err)
		}
		if segIdx < 0 || segIdx >= len(t.Segments) {
			return media.Transcript{}, fmt.Errorf("postgres: word references missing segment %d", segIdx)
		}
		t.Segments[segIdx].Words = append(t.Segments[segIdx].Words, w)
	}
	return t, wordRows.Err()
}
