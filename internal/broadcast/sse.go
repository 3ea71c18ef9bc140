package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ServeEvents streams one auction's events as server-sent events. It is the
// read-only alternative to the viewer socket for clients that cannot hold one.
func (s *Server) ServeEvents(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.Hub.Register()
	defer s.Hub.Remove(sub)
	if !s.Hub.Subscribe(sub, auctionID) {
		return
	}
	s.Logger.LogBroadcast("SSE_CONNECT", auctionID, fmt.Sprintf("viewer %s from %s", sub.ID, r.RemoteAddr))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed to %s\n\n", auctionID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.LogBroadcast("SSE_DISCONNECT", auctionID, fmt.Sprintf("viewer %s", sub.ID))
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				s.Logger.Error("BROADCAST", fmt.Sprintf("Marshal event for %s: %v", auctionID, err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
