// Package session ties one connected client to the transcript engine. Each
// session owns its transcript, its editable word sequence, and its click
// router, and processes client events strictly in arrival order on a single
// goroutine. State updates and playback commands flow back to the client as
// Update values.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kweiler/clipscribe/internal/editor"
	"github.com/kweiler/clipscribe/internal/interact"
	"github.com/kweiler/clipscribe/internal/timeline"
	"github.com/kweiler/clipscribe/pkg/media"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithRouterOptions forwards options to the session's click router, e.g.
// interact.WithPauseOnly.
func WithRouterOptions(opts ...interact.Option) Option {
	return func(s *Session) { s.routerOpts = opts }
}

// WithPauseThreshold sets the minimum inter-segment silence that is
// materialized as a gap entry when a transcript is loaded into the session.
func WithPauseThreshold(seconds float64) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.pauseThreshold = seconds
		}
	}
}

// WithTranscriptLoader lets clients load stored transcripts over the wire
// with an EventTranscript event. Without a loader those events answer with
// an error update.
func WithTranscriptLoader(load func(ctx context.Context, id string) (media.Transcript, error)) Option {
	return func(s *Session) { s.loadTranscript = load }
}

// Session is the per-client engine instance. Create it with New, feed it
// with Dispatch, run its loop with Run, and read outgoing updates from
// Updates.
type Session struct {
	id             string
	log            *slog.Logger
	routerOpts     []interact.Option
	pauseThreshold float64
	loadTranscript func(ctx context.Context, id string) (media.Transcript, error)

	seq    *editor.Sequence
	router *interact.Router

	events  chan Event
	updates chan Update
	done    chan struct{}
	once    sync.Once

	// Owned by the Run goroutine.
	runCtx   context.Context
	segments []media.Segment
	loaded   bool
	duration float64
	lastPos  timeline.Position
	lastFlat int
}

// New creates an idle session. Run must be called before dispatched events
// take effect.
func New(opts ...Option) *Session {
	s := &Session{
		id:             newID(),
		log:            slog.Default(),
		pauseThreshold: media.DefaultPauseThreshold,
		seq:            editor.NewSequence(),
		events:         make(chan Event, 64),
		updates:        make(chan Update, 64),
		done:           make(chan struct{}),
		lastPos:        timeline.Position{Segment: timeline.None, Word: timeline.None},
		lastFlat:       timeline.None,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session", s.id)
	s.router = interact.NewRouter(playbackEmitter{s}, s.routerOpts...)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Updates returns the channel of outgoing updates. It is closed when Run
// returns.
func (s *Session) Updates() <-chan Update { return s.updates }

// Dispatch queues a client event for processing. It returns an error when
// the session is closed; a full event queue blocks until the loop drains.
func (s *Session) Dispatch(ev Event) error {
	select {
	case <-s.done:
		return fmt.Errorf("session: %s is closed", s.id)
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return fmt.Errorf("session: %s is closed", s.id)
	}
}

// SetTranscript replaces the session's transcript. Gap entries are
// synthesized for inter-segment silences, the editable sequence is reset to
// the flattened words, and the client receives the fresh sequence and a
// cleared selection.
func (s *Session) SetTranscript(t media.Transcript) error {
	return s.Dispatch(Event{Type: eventSetTranscript, transcript: &t})
}

// Close ends the session. Pending events are discarded. Safe to call more
// than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// Run processes events until ctx is cancelled or the session is closed.
// It owns all session state; no other goroutine touches it.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.updates)
	defer s.router.Close()

	s.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	switch ev.Type {
	case eventSetTranscript:
		s.handleSetTranscript(*ev.transcript)
	case EventLoad:
		s.loaded = true
		s.duration = ev.Duration
		s.router.SetLoaded(true)
	case EventUnload:
		s.loaded = false
		s.router.SetLoaded(false)
		s.resetActive()
	case EventTimeUpdate:
		s.handleTimeUpdate(ev.Time)
	case EventSegmentClick:
		s.handleSegmentClick(ev.Segment)
	case EventWordClick:
		s.handleWordClick(ev.Segment, ev.Word)
	case EventFlatClick:
		s.handleFlatClick(ev.Index)
	case EventSelect:
		s.seq.Select(ev.Index)
		s.emit(Update{Type: UpdateSelection, Index: s.seq.Selected()})
	case EventKey:
		s.handleKey(ev.Key)
	case EventTranscript:
		s.handleLoadTranscript(ev.ID)
	default:
		s.log.Warn("ignoring unknown event", "type", ev.Type)
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("unknown event type %q", ev.Type)})
	}
}

func (s *Session) handleSetTranscript(t media.Transcript) {
	s.segments = media.InsertGapSegments(t.Segments, s.pauseThreshold)
	s.seq.ResetWords(media.Transcript{Segments: s.segments}.FlatWords())
	s.resetActive()
	s.emit(Update{Type: UpdateSequence, Words: s.seq.Words()})
	s.emit(Update{Type: UpdateSelection, Index: editor.NoSelection})
	s.log.Info("transcript loaded", "segments", len(s.segments), "words", s.seq.Len())
}

// handleLoadTranscript resolves a stored transcript by ID through the
// configured loader and applies it like any other transcript change.
func (s *Session) handleLoadTranscript(id string) {
	if s.loadTranscript == nil {
		s.emit(Update{Type: UpdateError, Detail: "transcript loading is not available"})
		return
	}
	t, err := s.loadTranscript(s.runCtx, id)
	if err != nil {
		s.log.Warn("transcript load failed", "id", id, "err", err)
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("transcript %q could not be loaded", id)})
		return
	}
	s.handleSetTranscript(t)
}

// handleTimeUpdate re-resolves both the segmented position and the flat
// sequence position and pushes an active update when either changed.
func (s *Session) handleTimeUpdate(t float64) {
	if !s.loaded {
		return
	}
	pos := timeline.Resolve(t, s.segments)
	flat := timeline.ResolveFlat(t, s.seq.Words())
	if pos == s.lastPos && flat == s.lastFlat {
		return
	}
	s.lastPos = pos
	s.lastFlat = flat
	s.emit(Update{Type: UpdateActive, Segment: pos.Segment, Word: pos.Word, Flat: flat})
}

func (s *Session) handleSegmentClick(i int) {
	if i < 0 || i >= len(s.segments) {
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("segment index %d out of range", i)})
		return
	}
	s.router.SegmentClick(s.segments[i].Start, &interact.ClickEvent{})
}

// handleWordClick routes one pointer event through both the word and the
// enclosing segment handler. The word handler claims the event, so the
// segment handler backs off and the click pauses instead of playing.
func (s *Session) handleWordClick(seg, word int) {
	if seg < 0 || seg >= len(s.segments) {
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("segment index %d out of range", seg)})
		return
	}
	words := s.segments[seg].Words
	if word < 0 || word >= len(words) {
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("word index %d out of range in segment %d", word, seg)})
		return
	}
	ev := &interact.ClickEvent{}
	s.router.WordClick(words[word].Start, ev)
	s.router.SegmentClick(s.segments[seg].Start, ev)
}

func (s *Session) handleFlatClick(i int) {
	w, ok := s.seq.Word(i)
	if !ok {
		s.emit(Update{Type: UpdateError, Detail: fmt.Sprintf("flat index %d out of range", i)})
		return
	}
	s.router.WordClick(w.Start, &interact.ClickEvent{})
}

func (s *Session) handleKey(key string) {
	switch key {
	case "Delete", "Backspace":
		if !s.seq.DeleteSelected() {
			return
		}
		s.emit(Update{Type: UpdateSequence, Words: s.seq.Words()})
		s.emit(Update{Type: UpdateSelection, Index: editor.NoSelection})
	case "Escape":
		s.seq.ClearSelection()
		s.emit(Update{Type: UpdateSelection, Index: editor.NoSelection})
	}
}

func (s *Session) resetActive() {
	s.lastPos = timeline.Position{Segment: timeline.None, Word: timeline.None}
	s.lastFlat = timeline.None
	s.emit(Update{Type: UpdateActive, Segment: timeline.None, Word: timeline.None, Flat: timeline.None})
}

// emit pushes an update without ever blocking the event loop. A slow or
// stalled client loses updates rather than wedging the session; the next
// state change supersedes anything dropped.
func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	case <-s.done:
	default:
		s.log.Warn("dropping update for slow client", "type", u.Type)
	}
}

// playbackEmitter adapts the session's update stream to the router's
// Playback interface. The router's resume timer calls Play from its own
// goroutine, so these only touch the concurrency-safe emit path.
type playbackEmitter struct{ s *Session }

func (p playbackEmitter) Seek(seconds float64) {
	p.s.emit(Update{Type: UpdateSeek, Time: seconds})
}

func (p playbackEmitter) Play()  { p.s.emit(Update{Type: UpdatePlay}) }
func (p playbackEmitter) Pause() { p.s.emit(Update{Type: UpdatePause}) }

func newID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "session-unknown"
	}
	return hex.EncodeToString(b)
}
