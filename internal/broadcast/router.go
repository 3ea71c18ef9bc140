package broadcast

import (
	"context"
	"net/http"

	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the broadcaster's endpoints.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.Logger.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w, http.StatusOK, "ok", map[string]int{
			"connections": s.Hub.Connections(),
		})
	})
	r.Get("/auctions/{auctionId}/viewers", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "auctionId")
		utils.WriteSuccess(w, http.StatusOK, "viewers", map[string]any{"auctionId": id, "viewers": s.Hub.Viewers(id)})
	})
	r.Get("/ws", s.ServeViewer)
	r.Get("/auctions/{auctionId}/events", s.ServeEvents)
	r.Get("/internal/ws", s.ServeInternal)
	return r
}

// EventSource yields live events from somewhere other than the ingress socket.
type EventSource interface {
	Run(ctx context.Context, handle func(context.Context, models.LiveEvent)) error
}

// Ingest publishes every event from src to the hub until ctx ends.
func (h *Hub) Ingest(ctx context.Context, src EventSource) error {
	return src.Run(ctx, func(_ context.Context, ev models.LiveEvent) {
		h.Publish(ev)
	})
}
