package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kweiler/clipscribe/internal/mediautil"
	"github.com/kweiler/clipscribe/internal/observe"
	"github.com/kweiler/clipscribe/internal/store"
	"github.com/kweiler/clipscribe/pkg/media"
)

// handleTranscribe accepts a media upload, resolves it to a transcript, and
// returns the transcript JSON. Re-uploads of known content are answered from
// the store without running recognition again.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	upload, name, err := s.receiveUpload(w, r)
	if err != nil {
		s.metrics.RecordUpload(ctx, "rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(upload)

	hash, err := hashFile(upload)
	if err != nil {
		s.metrics.RecordUpload(ctx, "error")
		writeError(w, http.StatusInternalServerError, "hashing upload failed")
		return
	}

	// Known content serves the stored transcript without a new ASR run.
	if t, err := s.store.FindByHash(ctx, hash); err == nil {
		s.metrics.StoreHits.Add(ctx, 1)
		s.metrics.RecordUpload(ctx, "cached")
		writeJSON(w, http.StatusOK, t)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Error("store lookup failed", "err", err)
	}

	audioPath, cleanup, err := s.normalizeAudio(ctx, upload, name)
	if err != nil {
		s.metrics.RecordUpload(ctx, "error")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	defer cleanup()

	start := time.Now()
	t, err := s.asrProvider.Transcribe(ctx, audioPath)
	s.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "asr", "transcribe")
		s.metrics.RecordUpload(ctx, "error")
		s.log.Error("transcription failed", "file", name, "err", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	s.metrics.RecordProviderRequest(ctx, "asr", "transcribe", "ok")

	if info, err := mediautil.Probe(ctx, audioPath); err == nil {
		s.log.Info("media transcribed",
			"file", name,
			"duration_sec", info.Duration,
			"codec", info.Codec,
			"segments", len(t.Segments),
		)
	}

	t.Segments = media.InsertGapSegments(t.Segments, s.pauseThreshold)

	id, err := s.store.Save(ctx, name, hash, t)
	if err != nil {
		s.log.Error("store save failed", "err", err)
	} else {
		t.ID = id
	}

	s.metrics.RecordUpload(ctx, "ok")
	writeJSON(w, http.StatusOK, t)
}

// handleExtractAudio accepts a media upload and streams back the mono 16 kHz
// WAV rendition that the recognition pipeline consumes.
func (s *Server) handleExtractAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !mediautil.Available() {
		writeError(w, http.StatusServiceUnavailable, "ffmpeg not available")
		return
	}

	upload, name, err := s.receiveUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(upload)

	start := time.Now()
	wavPath, err := mediautil.ExtractAudio(ctx, upload, s.tmpDir)
	s.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.log.Error("audio extraction failed", "file", name, "err", err)
		writeError(w, http.StatusUnprocessableEntity, "audio extraction failed")
		return
	}
	defer os.Remove(wavPath)

	f, err := os.Open(wavPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading extracted audio failed")
		return
	}
	defer f.Close()

	base := strings.TrimSuffix(name, filepath.Ext(name))
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", base+"_audio_16k.wav"))
	if _, err := io.Copy(w, f); err != nil {
		s.log.Warn("streaming extracted audio", "err", err)
	}
}

// handleListTranscripts returns the stored transcript metadata, newest first.
func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("store list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "listing transcripts failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetTranscript returns one stored transcript by ID.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if err != nil {
		s.log.Error("store get failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleTranscriptSRT renders one stored transcript as SubRip subtitles.
func (s *Server) handleTranscriptSRT(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if err != nil {
		s.log.Error("store get failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".srt"))
	if err := t.WriteSRT(w); err != nil {
		s.log.Warn("streaming srt", "id", id, "err", err)
	}
}

// receiveUpload reads the "file" part of a multipart upload into a temp file
// and returns its path and the client-side filename.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (path, name string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", "", errors.New("multipart upload with a \"file\" part required")
	}
	defer file.Close()

	path, err = s.stageUpload(file, hdr)
	if err != nil {
		return "", "", err
	}
	return path, filepath.Base(hdr.Filename), nil
}

// stageUpload copies the uploaded part to a temp file in the configured
// staging directory, preserving the original extension for ffmpeg.
func (s *Server) stageUpload(file multipart.File, hdr *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(hdr.Filename)
	tmp, err := os.CreateTemp(s.tmpDir, "upload-*"+ext)
	if err != nil {
		return "", errors.New("staging upload failed")
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.New("reading upload failed")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.New("staging upload failed")
	}
	return tmp.Name(), nil
}

// normalizeAudio returns a path holding mono 16 kHz WAV audio for the given
// upload. WAV input passes through untouched; anything else goes through
// ffmpeg. The returned cleanup removes the converted file when one was made.
func (s *Server) normalizeAudio(ctx context.Context, path, name string) (string, func(), error) {
	if strings.EqualFold(filepath.Ext(name), ".wav") {
		return path, func() {}, nil
	}
	if !mediautil.Available() {
		return "", nil, errors.New("ffmpeg not available: only .wav uploads are supported")
	}

	start := time.Now()
	wavPath, err := mediautil.ExtractAudio(ctx, path, s.tmpDir)
	s.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("source", strings.TrimPrefix(filepath.Ext(name), "."))))
	if err != nil {
		s.log.Error("audio extraction failed", "file", name, "err", err)
		return "", nil, errors.New("audio extraction failed")
	}
	return wavPath, func() { os.Remove(wavPath) }, nil
}

// hashFile computes the content hash of the staged upload.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return store.HashReader(f)
}
