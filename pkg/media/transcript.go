// Package media defines the transcript data model shared by every part of
// clipscribe: timestamped words, segments, and whole transcripts as produced
// by ASR backends and consumed by the timeline, editor, and session layers.
//
// All times are seconds from the start of the media file. Every interval is
// half-open: a word or segment covers [Start, End), so a position exactly at
// End already belongs to the next unit (or to no unit at all).
package media

// Word is a single recognized word with its time interval.
type Word struct {
	// Text is the recognized word, or a gap marker such as "[0.500 sec]"
	// for synthesized silence entries.
	Text string `json:"word"`

	// Start is the inclusive start of the interval in seconds.
	Start float64 `json:"start"`

	// End is the exclusive end of the interval in seconds. End >= Start.
	End float64 `json:"end"`
}

// Duration returns the length of the word's interval in seconds.
func (w Word) Duration() float64 { return w.End - w.Start }

// IsGap reports whether the word is a synthesized gap marker rather than
// recognized speech.
func (w Word) IsGap() bool { return IsGapMarker(w.Text) }

// Segment is a contiguous run of words with segment-level timing. The
// segment interval covers all of its words; word intervals never extend
// outside [Start, End).
type Segment struct {
	// Text is the concatenated segment text as returned by the recognizer.
	Text string `json:"text"`

	// Start is the inclusive start of the segment in seconds.
	Start float64 `json:"start"`

	// End is the exclusive end of the segment in seconds.
	End float64 `json:"end"`

	// Pause is the silence in seconds between the previous segment's End
	// and this segment's Start. Zero for the first segment. Presentation
	// metadata only; it never shifts Start or End.
	Pause float64 `json:"pause"`

	// Words are the word-level timestamps in ascending Start order.
	Words []Word `json:"words"`
}

// IsGap reports whether the segment is a synthesized gap pseudo-segment.
func (s Segment) IsGap() bool { return IsGapMarker(s.Text) }

// Transcript is the result of transcribing one media file.
type Transcript struct {
	// ID identifies the stored transcript. Empty for transcripts that were
	// never persisted.
	ID string `json:"id,omitempty"`

	// Segments are ordered by Start and do not overlap.
	Segments []Segment `json:"result"`
}

// FlatWords returns every word of every segment in playback order as a
// single sequence. The returned slice is freshly allocated; mutating it
// does not affect the transcript.
func (t Transcript) FlatWords() []Word {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg.Words)
	}
	words := make([]Word, 0, n)
	for _, seg := range t.Segments {
		words = append(words, seg.Words...)
	}
	return words
}

// Duration returns the End of the last segment, or 0 for an empty
// transcript.
func (t Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// Clone returns a deep copy of the transcript.
func (t Transcript) Clone() Transcript {
	out := Transcript{ID: t.ID, Segments: make([]Segment, len(t.Segments))}
	for i, seg := range t.Segments {
		cp := seg
		cp.Words = append([]Word(nil), seg.Words...)
		out.Segments[i] = cp
	}
	return out
}
