package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/kweiler/clipscribe/internal/interact"
	"github.com/kweiler/clipscribe/internal/session"
)

// handleSession upgrades the connection to a WebSocket and binds it to a new
// editing session. Client events flow in as JSON [session.Event] messages;
// state changes and playback commands flow back as [session.Update] messages.
//
// The optional ?transcript=<id> query parameter preloads a stored transcript
// into the session before the first event is processed.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	routerOpts := []interact.Option{interact.WithResumeDelay(s.resumeDelay)}
	if s.pauseOnly {
		routerOpts = append(routerOpts, interact.WithPauseOnly())
	}
	sess := session.New(
		session.WithLogger(s.log),
		session.WithPauseThreshold(s.pauseThreshold),
		session.WithRouterOptions(routerOpts...),
		session.WithTranscriptLoader(s.store.Get),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.sessions.Add(sess)
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer func() {
		s.sessions.Remove(sess.ID())
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}()

	if id := r.URL.Query().Get("transcript"); id != "" {
		t, err := s.store.Get(ctx, id)
		if err != nil {
			s.log.Debug("session preload failed", "transcript", id, "err", err)
			conn.Close(websocket.StatusPolicyViolation, "unknown transcript")
			return
		}
		// Queued on the event channel; applied once the loop starts.
		if err := sess.SetTranscript(t); err != nil {
			return
		}
	}

	s.log.Info("session opened", "session", sess.ID(), "remote", r.RemoteAddr)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = sess.Run(ctx)
	}()

	// Writer: forward session updates until the session loop exits.
	go func() {
		for u := range sess.Updates() {
			if err := wsjson.Write(ctx, conn, u); err != nil {
				cancel()
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	// Reader: dispatch client events into the session loop.
	for {
		var ev session.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			break
		}
		if err := sess.Dispatch(ev); err != nil {
			break
		}
	}

	sess.Close()
	cancel()
	<-runDone
	s.log.Info("session closed", "session", sess.ID())
}
