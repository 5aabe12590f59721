package whisperx

import (
	"encoding/json"
	"testing"
)

func TestConvert(t *testing.T) {
	t.Parallel()

	raw := `{"segments":[
		{"text":" hello world ","start":0.5,"end":2.0,"words":[
			{"word":"hello","start":0.5,"end":1.2},
			{"word":"world","start":1.3,"end":2.0}
		]},
		{"text":"again","start":3.0,"end":4.0,"words":[
			{"word":"again"}
		]}
	]}`

	var res result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	tr, err := convert(res)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(tr.Segments))
	}

	first := tr.Segments[0]
	if first.Text != "hello world" {
		t.Errorf("segment text = %q, want trimmed %q", first.Text, "hello world")
	}
	if len(first.Words) != 2 || first.Words[1].Start != 1.3 {
		t.Errorf("words = %+v, want aligned timestamps preserved", first.Words)
	}

	// The unaligned word inherits the segment interval.
	w := tr.Segments[1].Words[0]
	if w.Start != 3.0 || w.End != 4.0 {
		t.Errorf("unaligned word interval = [%v, %v), want [3, 4)", w.Start, w.End)
	}

	// Pauses are annotated relative to the previous segment.
	if tr.Segments[1].Pause != 1.0 {
		t.Errorf("second segment pause = %v, want 1.0", tr.Segments[1].Pause)
	}
}

func TestConvertRejectsInvertedSegment(t *testing.T) {
	t.Parallel()

	raw := `{"segments":[{"text":"x","start":5.0,"end":4.0}]}`
	var res result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if _, err := convert(res); err == nil {
		t.Error("convert accepted a segment ending before it starts")
	}
}
