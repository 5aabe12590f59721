package whisper

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// whisper.cpp only accepts 16 kHz input.
const requiredSampleRate = 16000

// readWAVMono16k reads a RIFF/WAVE file containing 16-bit signed
// little-endian PCM, down-mixes it to mono, and returns normalized float32
// samples. Files with a sample rate other than 16 kHz are rejected;
// normalize them with ffmpeg first.
func readWAVMono16k(path string) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 12 || !bytes.Equal(raw[0:4], []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
	)

	// Walk the chunk list for "fmt " and "data".
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			return nil, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format tag %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			data = raw[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if channels == 0 || data == nil {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
	}
	if sampleRate != requiredSampleRate {
		return nil, fmt.Errorf("sample rate %d Hz, want %d Hz", sampleRate, requiredSampleRate)
	}

	return pcmToFloat32Mono(data, channels), nil
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame. If channels is 1 this is equivalent to
// pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
