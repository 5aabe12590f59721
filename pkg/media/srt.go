package media

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// formatSRTTime converts seconds to the SRT time format HH:MM:SS,mmm.
// Rounding happens on total milliseconds before decomposing, so a value a
// hair under a minute boundary carries all the way through to the next
// minute instead of rendering second 60.
func formatSRTTime(seconds float64) string {
	total := int64(math.Round(math.Abs(seconds) * 1000))
	hours := total / 3_600_000
	total %= 3_600_000
	minutes := total / 60_000
	total %= 60_000
	secs := total / 1000
	millis := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// WriteSRT renders the transcript as SubRip subtitles. Gap pseudo-segments
// are silence, not speech, and are skipped.
func (t Transcript) WriteSRT(w io.Writer) error {
	n := 0
	for _, seg := range t.Segments {
		if seg.IsGap() {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			n, formatSRTTime(seg.Start), formatSRTTime(seg.End), text); err != nil {
			return fmt.Errorf("media: write srt: %w", err)
		}
	}
	return nil
}

// SRT returns the transcript rendered as SubRip subtitles.
func (t Transcript) SRT() string {
	var b strings.Builder
	_ = t.WriteSRT(&b)
	return b.String()
}
