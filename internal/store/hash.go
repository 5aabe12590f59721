package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// HashReader computes the hex-encoded BLAKE3 hash of everything read from
// r. This is the content key under which transcripts are stored.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("store: hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewID returns a random 16-character hex identifier for a stored
// transcript.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("store: read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
