// Package asr defines the Provider interface for speech recognition
// backends.
//
// An ASR provider wraps a local model or remote API (e.g., whisper.cpp via
// CGO, a whisper.cpp server, or a WhisperX CLI) and exposes a uniform
// batch transcription interface that yields word-level timestamps. The
// engine depends only on this interface, never on a specific backend.
//
// Implementors must be safe for concurrent use; a single provider instance
// serves every upload handled by the server.
package asr

import (
	"context"

	"github.com/kweiler/clipscribe/pkg/media"
)

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// Transcribe recognizes the audio file at path and returns its
	// transcript with word-level timestamps. The file must be playable
	// audio; callers normalize video input before calling. Implementations
	// must respect ctx cancellation and return promptly when it fires.
	//
	// Segments in the returned transcript are ordered by start time.
	// Pause annotation and gap synthesis are the caller's concern.
	Transcribe(ctx context.Context, path string) (media.Transcript, error)

	// Close releases backend resources (loaded models, subprocesses,
	// connections). The provider is unusable afterwards.
	Close() error
}
