package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/infra/hub"
)

const heartbeatInterval = 15 * time.Second

// streamEvents serves one hub subscription as a Server-Sent-Events
// stream: replay first, then live events until the stream terminates or
// the client goes away. A closed Events channel is the hub's
// end-of-stream signal (terminal event delivered, or the subscriber was
// dropped for not draining).
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sub *hub.Subscription) {
	defer sub.Cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, ev := range sub.Replay {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		if ev.Terminal() {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, data)
	return err
}
