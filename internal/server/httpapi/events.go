package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
)

// handleEvents streams sync notifications as server-sent events. A comment
// line is written on every keep-alive tick so proxies keep the connection open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	userID, err := s.auth.Authenticate(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.broker.Subscribe(userID)
	defer s.broker.Unsubscribe(sub)

	send := func(line string) bool {
		if _, err := fmt.Fprint(w, line); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(": connected\n\n") {
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				// Evicted by a newer connection of the same user.
				return
			}
			if !send("data: " + common.SyncNeededMessage + "\n\n") {
				return
			}
		case <-ticker.C:
			if !send(": keep-alive\n\n") {
				return
			}
		}
	}
}
