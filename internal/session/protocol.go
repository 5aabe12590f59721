package session

import "github.com/kweiler/clipscribe/pkg/media"

// Client-to-session event types.
const (
	EventTimeUpdate   = "timeupdate"    // playback position report; Time is set
	EventLoad         = "load"          // media became loaded; Duration is set
	EventUnload       = "unload"        // media was unloaded
	EventSegmentClick = "segment_click" // click on a segment; Segment is set
	EventWordClick    = "word_click"    // click on a word; Segment and Word are set
	EventFlatClick    = "flat_click"    // click on a flat sequence word; Index is set
	EventSelect       = "select"        // selection change in the editor; Index is set
	EventKey          = "key"           // keyboard input; Key is set
	EventTranscript   = "transcript"    // load a stored transcript; ID is set

	// eventSetTranscript carries a new transcript into the event loop. It
	// is produced by SetTranscript, never parsed from the wire.
	eventSetTranscript = "set_transcript"
)

// Session-to-client update types.
const (
	UpdateActive    = "active"    // active segment/word/flat indexes changed
	UpdateSeek      = "seek"      // move the playback position to Time
	UpdatePlay      = "play"      // start or resume playback
	UpdatePause     = "pause"     // pause playback
	UpdateSequence  = "sequence"  // the editable word sequence was replaced or edited
	UpdateSelection = "selection" // the editor selection changed
	UpdateError     = "error"     // a client event could not be applied
)

// Event is a single client input delivered to a session. Only the fields
// relevant to Type carry meaning; the rest are zero.
type Event struct {
	Type     string  `json:"type"`
	Time     float64 `json:"time,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segment  int     `json:"segment,omitempty"`
	Word     int     `json:"word,omitempty"`
	Index    int     `json:"index,omitempty"`
	Key      string  `json:"key,omitempty"`
	ID       string  `json:"id,omitempty"`

	transcript *media.Transcript
}

// Update is a single state change or playback command pushed to the client.
type Update struct {
	Type string `json:"type"`

	// Active indexes, -1 when nothing is active at that level. Only
	// meaningful on UpdateActive. Not omitempty: 0 is a valid index.
	Segment int `json:"segment"`
	Word    int `json:"word"`
	Flat    int `json:"flat"`

	// Time is the seek target in seconds on UpdateSeek.
	Time float64 `json:"time"`

	// Words is the full editable sequence on UpdateSequence.
	Words []media.Word `json:"words,omitempty"`

	// Index is the selected word on UpdateSelection, -1 for none.
	Index int `json:"index"`

	// Detail describes the failure on UpdateError.
	Detail string `json:"detail,omitempty"`
}
