// Package interact routes click events from a transcript view to playback
// actions. Segment clicks jump playback to the segment start and keep
// playing; word clicks jump to the word start, pause for a short inspection
// window, and resume automatically unless another word click lands first.
package interact

import (
	"sync"
	"time"
)

// DefaultResumeDelay is how long playback stays paused after a word click
// before resuming.
const DefaultResumeDelay = 100 * time.Millisecond

// Playback is the media surface the router drives. For a remote client the
// implementation typically forwards these as commands over the session
// connection. Implementations must tolerate calls from multiple goroutines;
// the resume timer fires Play from its own goroutine.
type Playback interface {
	// Seek moves the playback position to the given time in seconds.
	Seek(seconds float64)
	// Play starts or resumes playback.
	Play()
	// Pause halts playback at the current position.
	Pause()
}

// ClickEvent carries the claim state of a single pointer event that may hit
// nested targets. The innermost handler claims the event so outer handlers
// know to stand down. A nil *ClickEvent is valid and simply cannot be
// claimed.
type ClickEvent struct {
	handled bool
}

// StopPropagation claims the event for the current handler.
func (e *ClickEvent) StopPropagation() {
	if e != nil {
		e.handled = true
	}
}

// Handled reports whether an inner handler has claimed the event.
func (e *ClickEvent) Handled() bool {
	return e != nil && e.handled
}

// Option configures a Router.
type Option func(*Router)

// WithResumeDelay overrides the pause duration after a word click.
func WithResumeDelay(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.resumeDelay = d
		}
	}
}

// WithPauseOnly disables the automatic resume: a word click seeks and
// pauses, and playback stays paused until the user starts it again.
func WithPauseOnly() Option {
	return func(r *Router) { r.pauseOnly = true }
}

// Router translates clicks into playback commands. At most one resume is
// pending at any time; every new word click cancels the previous pending
// resume and schedules its own. All clicks are ignored while no media is
// loaded. Safe for concurrent use.
type Router struct {
	playback    Playback
	resumeDelay time.Duration
	pauseOnly   bool

	mu        sync.Mutex
	loaded    bool
	resume    *time.Timer
	resumeGen uint64
}

// NewRouter returns a Router driving the given playback surface. The
// router starts in the unloaded state.
func NewRouter(p Playback, opts ...Option) *Router {
	r := &Router{
		playback:    p,
		resumeDelay: DefaultResumeDelay,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetLoaded marks whether media is loaded. Unloading cancels any pending
// resume.
func (r *Router) SetLoaded(loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = loaded
	if !loaded {
		r.cancelResumeLocked()
	}
}

// Loaded reports whether media is currently loaded.
func (r *Router) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// SegmentClick seeks to startSeconds and continues playback. It does
// nothing when the event was already claimed by a word handler or when no
// media is loaded.
func (r *Router) SegmentClick(startSeconds float64, ev *ClickEvent) {
	if ev.Handled() {
		return
	}
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return
	}
	r.cancelResumeLocked()
	r.mu.Unlock()

	r.playback.Seek(startSeconds)
	r.playback.Play()
}

// WordClick claims ev, seeks to startSeconds, pauses, and schedules the
// automatic resume. A click while a resume is already pending replaces the
// pending resume, so any burst of word clicks produces exactly one resume.
// Does nothing when no media is loaded (the event stays unclaimed).
func (r *Router) WordClick(startSeconds float64, ev *ClickEvent) {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return
	}
	ev.StopPropagation()
	r.cancelResumeLocked()
	if !r.pauseOnly {
		r.scheduleResumeLocked()
	}
	r.mu.Unlock()

	r.playback.Seek(startSeconds)
	r.playback.Pause()
}

// Close cancels any pending resume. The router stays usable afterwards.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelResumeLocked()
}

func (r *Router) cancelResumeLocked() {
	r.resumeGen++
	if r.resume != nil {
		r.resume.Stop()
		r.resume = nil
	}
}

func (r *Router) scheduleResumeLocked() {
	gen := r.resumeGen
	r.resume = time.AfterFunc(r.resumeDelay, func() {
		r.mu.Lock()
		if gen != r.resumeGen || !r.loaded {
			r.mu.Unlock()
			return
		}
		r.resume = nil
		r.mu.Unlock()
		r.playback.Play()
	})
}
