// Package timeline resolves a playback position against a transcript's
// time intervals. Every interval is half-open, so a position exactly on a
// boundary belongs to the unit starting there, never to the one ending
// there. Resolution is stateless and is meant to be re-evaluated on every
// playback time update.
package timeline

import "github.com/kweiler/clipscribe/pkg/media"

// None is the index reported when the position falls outside every
// interval at a given level.
const None = -1

// Position is the result of resolving a playback time against segmented
// words: the active segment index and the active word index within that
// segment. Either index may be None independently; Word is only meaningful
// when Segment is not None.
type Position struct {
	Segment int
	Word    int
}

// Resolve returns the active segment and word for playback time t.
//
// A segment is active when seg.Start <= t < seg.End. Within the active
// segment a word is active when word.Start <= t < word.End; t may fall
// between two words of the active segment, in which case Word is None
// while Segment is not.
func Resolve(t float64, segments []media.Segment) Position {
	for si, seg := range segments {
		if t < seg.Start || t >= seg.End {
			continue
		}
		pos := Position{Segment: si, Word: None}
		for wi, w := range seg.Words {
			if t >= w.Start && t < w.End {
				pos.Word = wi
				break
			}
		}
		return pos
	}
	return Position{Segment: None, Word: None}
}

// ResolveFlat returns the index of the active word in a flat word sequence
// for playback time t, or None when t falls inside no word's interval.
// The sequence need not stay aligned with any segment structure; edited
// sequences resolve on their own.
func ResolveFlat(t float64, words []media.Word) int {
	for i, w := range words {
		if t >= w.Start && t < w.End {
			return i
		}
	}
	return None
}
