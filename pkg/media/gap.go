package media

import (
	"fmt"
	"regexp"
)

// DefaultPauseThreshold is the minimum silence, in seconds, between two
// adjacent segments before a gap pseudo-segment is synthesized between them.
const DefaultPauseThreshold = 0.2

// gapMarkerRe matches the text of a synthesized gap entry: a bracketed
// duration such as "[0.500 sec]", "[2 s]" or "[500 ms]".
var gapMarkerRe = regexp.MustCompile(`^\[\d+(\.\d+)?\s*(ms|s|sec)\]$`)

// IsGapMarker reports whether text is a gap marker rather than a
// recognized word.
func IsGapMarker(text string) bool {
	return gapMarkerRe.MatchString(text)
}

// GapMarker formats a gap duration as marker text, e.g. GapMarker(0.5)
// returns "[0.500 sec]".
func GapMarker(seconds float64) string {
	return fmt.Sprintf("[%.3f sec]", seconds)
}

// AnnotatePauses sets Pause on every segment to the silence between it and
// the previous segment. The first segment's Pause is 0 regardless of its
// Start: leading silence is not a pause between speech. Negative gaps
// (overlapping recognizer output) clamp to 0.
func AnnotatePauses(segments []Segment) {
	prevEnd := 0.0
	for i := range segments {
		pause := 0.0
		if i > 0 {
			pause = segments[i].Start - prevEnd
			if pause < 0 {
				pause = 0
			}
		}
		segments[i].Pause = pause
		prevEnd = segments[i].End
	}
}

// InsertGapSegments returns a new segment slice where every inter-segment
// silence longer than threshold is materialized as a gap pseudo-segment
// covering the silent interval. A gap segment carries a single word whose
// text is the gap marker, so it participates in flat-word sequences and
// timeline resolution like any other segment. Silence before the first
// segment stays unmarked; only silence between speech becomes a gap. Pause
// values of the input segments are recomputed relative to the new
// neighbours.
//
// The input slice is not modified. Segments must already be sorted by Start.
func InsertGapSegments(segments []Segment, threshold float64) []Segment {
	if threshold <= 0 {
		threshold = DefaultPauseThreshold
	}

	out := make([]Segment, 0, len(segments))
	prevEnd := 0.0
	for i, seg := range segments {
		gap := seg.Start - prevEnd
		if i > 0 && gap > threshold {
			marker := GapMarker(gap)
			out = append(out, Segment{
				Text:  marker,
				Start: prevEnd,
				End:   seg.Start,
				Words: []Word{{Text: marker, Start: prevEnd, End: seg.Start}},
			})
		}
		out = append(out, seg)
		prevEnd = seg.End
	}

	AnnotatePauses(out)
	return out
}
