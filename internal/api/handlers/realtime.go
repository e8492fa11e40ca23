package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apimiddleware "github.com/autobrr/litebase/internal/api/middleware"
	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/realtime"
)

// RealtimeHandler wires a table's SSE subscribe route to internal/realtime.
// Grounded on the teacher's internal/api/sse package's http.Handler shape,
// generalized from a single qBittorrent sync channel to one stream per
// record API table.
type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	userID, authenticated := apimiddleware.CallerFromContext(r.Context())

	if err := h.hub.ServeHTTP(w, r, table, userID, authenticated); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("api: subscribe rejected")
		writeError(w, apierr.Forbidden())
	}
}
