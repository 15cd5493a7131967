package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type translationEvent struct {
	TextKey    string `json:"text_key"`
	Translated string `json:"translated"`
}

// handleTranslationStream pushes every resolved translation to the client as
// a server-sent event. A slow client drops events rather than blocking the
// notifier fan-out.
func (s *Server) handleTranslationStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.notifier == nil {
		writeError(w, http.StatusNotImplemented, "translation stream is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the headers go out so no resolution published after
	// the client sees the response can be missed.
	events := make(chan translationEvent, 16)
	cancel := s.notifier.SubscribeAll(func(key, translated string) {
		select {
		case events <- translationEvent{TextKey: key, Translated: translated}:
		default:
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
