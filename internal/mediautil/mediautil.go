// Package mediautil wraps the ffmpeg and ffprobe CLIs for the audio
// handling the engine needs: normalizing uploads to mono 16 kHz WAV before
// recognition and probing media duration.
package mediautil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Available reports whether ffmpeg is on the PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ExtractAudio uses ffmpeg to extract mono 16 kHz WAV from any audio or
// video input. Returns the path of the extracted file inside tmpDir.
func ExtractAudio(ctx context.Context, inputPath string, tmpDir string) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(tmpDir, base+"_audio_16k.wav")

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", inputPath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		slog.Error("ffmpeg extraction failed", "input", filepath.Base(inputPath), "output", string(output))
		return "", fmt.Errorf("mediautil: ffmpeg: %w", err)
	}
	return out, nil
}

// probeOutput mirrors the ffprobe JSON structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// MediaInfo holds duration and codec information from ffprobe.
type MediaInfo struct {
	Duration float64
	Codec    string
}

// Probe uses ffprobe to read the duration and first audio codec of the
// file at path.
func Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("mediautil: ffprobe not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("mediautil: ffprobe: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("mediautil: parse ffprobe output: %w", err)
	}

	dur, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	info := &MediaInfo{Duration: dur}
	if len(probe.Streams) > 0 {
		info.Codec = probe.Streams[0].CodecName
	}
	return info, nil
}
