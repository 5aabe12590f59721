// Package store persists transcripts keyed by the content hash of their
// source media, so re-uploading the same file returns the stored result
// instead of transcribing again. Two backends implement the interface:
// SQLite for single-node deployments and PostgreSQL for shared ones.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kweiler/clipscribe/pkg/media"
)

// ErrNotFound is returned when no transcript matches the lookup key.
var ErrNotFound = errors.New("store: transcript not found")

// Entry is the metadata of one stored transcript.
type Entry struct {
	ID        string
	Name      string
	Hash      string
	CreatedAt time.Time
}

// Store is the persistence abstraction for transcripts. Implementations
// must be safe for concurrent use.
type Store interface {
	// Save persists the transcript under the media content hash and
	// returns its assigned ID. Saving a hash that already exists returns
	// the existing ID without writing.
	Save(ctx context.Context, name, hash string, t media.Transcript) (string, error)

	// Get returns the transcript with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (media.Transcript, error)

	// FindByHash returns the transcript stored for a media content hash,
	// or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (media.Transcript, error)

	// List returns the metadata of all stored transcripts, newest first.
	List(ctx context.Context) ([]Entry, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
