// Package editor holds the editable flat word sequence of a session.
//
// The sequence starts as a copy of the transcript's flattened words and then
// evolves independently: deleting a word here never touches the segmented
// transcript, and the surviving words keep their original timestamps. A
// single word may be selected at a time; any structural change, a delete or
// a wholesale replacement, clears the selection.
package editor

import (
	"sync"

	"github.com/kweiler/clipscribe/pkg/media"
)

// NoSelection is the reported selection index when no word is selected.
const NoSelection = -1

// Sequence is a mutable, selectable flat word sequence. It is safe for
// concurrent use.
type Sequence struct {
	mu       sync.Mutex
	words    []media.Word
	selected int
}

// NewSequence returns an empty sequence with no selection.
func NewSequence() *Sequence {
	return &Sequence{selected: NoSelection}
}

// Reset replaces the sequence with the transcript's flattened words and
// clears the selection.
func (s *Sequence) Reset(t media.Transcript) {
	s.ResetWords(t.FlatWords())
}

// ResetWords replaces the sequence with a copy of words and clears the
// selection.
func (s *Sequence) ResetWords(words []media.Word) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = append([]media.Word(nil), words...)
	s.selected = NoSelection
}

// Words returns a copy of the current sequence.
func (s *Sequence) Words() []media.Word {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.Word(nil), s.words...)
}

// Len returns the number of words currently in the sequence.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.words)
}

// Word returns the word at index i and whether the index is in range.
func (s *Sequence) Word(i int) (media.Word, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.words) {
		return media.Word{}, false
	}
	return s.words[i], true
}

// Select marks the word at index i as selected, replacing any previous
// selection. Selecting the already-selected index keeps it selected.
// Out-of-range indexes are ignored; the previous selection stands.
func (s *Sequence) Select(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.words) {
		return
	}
	s.selected = i
}

// ClearSelection removes any current selection.
func (s *Sequence) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = NoSelection
}

// Selected returns the index of the selected word, or NoSelection.
func (s *Sequence) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Delete removes the word at index i. Later words shift down by one; their
// timestamps are untouched. Any selection is cleared, whether or not it
// pointed at the deleted word: a structural change invalidates the indexes
// the selection was made against. Out-of-range indexes are ignored.
func (s *Sequence) Delete(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(i)
}

// DeleteSelected removes the selected word, if any, and clears the
// selection. It reports whether a word was removed.
func (s *Sequence) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == NoSelection {
		return false
	}
	s.deleteLocked(s.selected)
	return true
}

func (s *Sequence) deleteLocked(i int) {
	if i < 0 || i >= len(s.words) {
		return
	}
	s.words = append(s.words[:i], s.words[i+1:]...)
	s.selected = NoSelection
}
