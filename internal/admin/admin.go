// Package admin exposes the record API admin surface spec.md §3 alludes to
// ("a record_apis table... editable via the admin surface"): CRUD over the
// `_record_apis` table backing internal/recordapi.Registry.
//
// Not grounded on any single teacher file — the teacher has no analogous
// "configure my own resources at runtime" surface, since its API surface is
// fixed at compile time. Built from SPEC_FULL.md's DOMAIN STACK entry for
// rs/cors ("fallback CORS for the admin surface... alongside the teacher's
// own CORSWithCredentials"): this surface gets its own permissive-but-
// explicit CORS policy via the real github.com/rs/cors library, distinct
// from internal/api/middleware's hand-rolled CORSWithCredentials, since an
// admin UI may be served from a different origin than the public record API.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/recordapi"
)

// NewRouter returns a chi.Router exposing list/create-or-update/delete
// operations over every registered record API, mountable under
// internal/api's own authenticated route group.
func NewRouter(eng *engine.Engine, registry *recordapi.Registry, cfg *config.AppConfig) chi.Router {
	r := chi.NewRouter()

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if cfg != nil && cfg.Host != "" {
		corsOrigins = append(corsOrigins, "http://"+cfg.Host)
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler)

	h := &handler{eng: eng, registry: registry}
	r.Get("/record-apis", h.list)
	r.Put("/record-apis/{table}", h.put)
	r.Delete("/record-apis/{table}", h.delete)

	return r
}

type handler struct {
	eng      *engine.Engine
	registry *recordapi.Registry
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.All())
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	var cfg recordapi.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cfg.Table = table
	if err := cfg.Rules.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.registry.Set(r.Context(), h.eng, cfg); err != nil {
		log.Error().Err(err).Str("table", table).Msg("admin: save record api config")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := h.registry.Remove(r.Context(), h.eng, table); err != nil {
		log.Error().Err(err).Str("table", table).Msg("admin: delete record api config")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
